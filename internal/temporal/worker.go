// Package temporal runs the durable index workflow: load a record set,
// build its call graph, persist it to Neo4j and index it in Qdrant.
package temporal

import (
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// Register adds the workflow and its activities to w.
func Register(w worker.Registry) {
	w.RegisterWorkflow(IndexWorkflow)
	w.RegisterActivity(LoadRecordsActivity)
	w.RegisterActivity(BuildGraphActivity)
	w.RegisterActivity(PersistGraphActivity)
	w.RegisterActivity(IndexVectorsActivity)
}

// StartWorker creates and starts a Temporal worker.
func StartWorker(c client.Client, taskQueue string) (worker.Worker, error) {
	w := worker.New(c, taskQueue, worker.Options{})
	Register(w)

	if err := w.Start(); err != nil {
		return nil, fmt.Errorf("starting worker: %w", err)
	}
	return w, nil
}

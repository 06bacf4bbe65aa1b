package bootstrap

import (
	workerin "mailmirror/adapter/in/worker"
)

// NewWorker builds the job-queue consumer pool for the worker process
// mode: one go-pkgz/pool member per durable queue (§4.6), dispatching
// into the sync orchestrator and the attachment uploader.
func NewWorker(d *Deps) *workerin.Pool {
	handler := workerin.NewHandler(d.Sync, d.Uploader, d.Attachments, d.Log)
	return workerin.NewPool(d.Queue, handler, d.Log)
}

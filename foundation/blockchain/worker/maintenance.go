package worker

// maintenanceOperations drops expired transactions from the mempool on
// every tick.
func (w *Worker) maintenanceOperations() {
	w.evHandler("worker: maintenanceOperations: G started")
	defer w.evHandler("worker: maintenanceOperations: G completed")

	for {
		select {
		case <-w.ticker.C:
			if !w.isShutdown() {
				evicted := w.state.PruneMempool()
				w.evHandler("worker: maintenanceOperations: evicted[%d]", len(evicted))
			}
		case <-w.shut:
			w.evHandler("worker: maintenanceOperations: received shut signal")
			return
		}
	}
}

package queue

// EstimateWaitMinutes converts a queue rank into an expected wait. The first
// in line (rank 1) waits zero; everyone else waits one average service slot
// per patient ahead of them.
func EstimateWaitMinutes(rank, avgServiceMinutes int) int {
	if rank <= 1 {
		return 0
	}
	return (rank - 1) * avgServiceMinutes
}

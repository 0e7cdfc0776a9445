package library

import "bookloom/internal/queue"

// StatusForJob maps a job status onto the coarse status stored on the book.
func StatusForJob(status queue.Status) BookStatus {
	switch status {
	case queue.StatusPending:
		return BookQueued
	case queue.StatusPlanning, queue.StatusPlanned, queue.StatusGenerating:
		return BookGenerating
	case queue.StatusComplete:
		return BookComplete
	case queue.StatusFailed:
		return BookFailed
	case queue.StatusPaused:
		return BookPaused
	case queue.StatusCancelled:
		return BookCancelled
	}
	return BookNone
}

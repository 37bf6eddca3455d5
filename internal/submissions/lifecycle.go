package submissions

import "github.com/seminar-hub/backend/internal/models"

// transitions is the complete set of legal status moves. REJECTED and PRESENTED have none.
var transitions = map[models.SubmissionStatus][]models.SubmissionStatus{
	models.SubmissionPending:     {models.SubmissionUnderReview, models.SubmissionRejected},
	models.SubmissionUnderReview: {models.SubmissionAccepted, models.SubmissionRejected, models.SubmissionScheduled},
	models.SubmissionAccepted:    {models.SubmissionScheduled},
	models.SubmissionScheduled:   {models.SubmissionPresented},
}

// CanTransition reports whether a submission may move from one status to another.
func CanTransition(from, to models.SubmissionStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func Terminal(s models.SubmissionStatus) bool {
	return len(transitions[s]) == 0
}

// stampsReview reports whether entering s records the review decision time.
func stampsReview(s models.SubmissionStatus) bool {
	return s == models.SubmissionAccepted || s == models.SubmissionRejected
}

// notifiesAuthor reports whether the author is emailed on entering s.
func notifiesAuthor(s models.SubmissionStatus) bool {
	switch s {
	case models.SubmissionAccepted, models.SubmissionRejected, models.SubmissionScheduled, models.SubmissionPresented:
		return true
	}
	return false
}

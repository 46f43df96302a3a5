package appointment

import (
	"github.com/oncoclinic/infusion/internal/domain/capacity"
)

// Appointment statuses.
const (
	StatusScheduled            = "scheduled"
	StatusAwaitingConsultation = "awaiting-consultation"
	StatusAwaitingExam         = "awaiting-exam"
	StatusAwaitingMedication   = "awaiting-medication"
	StatusAdmitted             = "admitted"
	StatusInTriage             = "in-triage"
	StatusInInfusion           = "in-infusion"
	StatusSuspended            = capacity.StatusSuspended
	StatusRescheduled          = capacity.StatusRescheduled
	StatusIncident             = "incident"
	StatusCompleted            = "completed"
)

// AllStatuses lists every status in display order.
var AllStatuses = []string{
	StatusScheduled, StatusAwaitingConsultation, StatusAwaitingExam, StatusAwaitingMedication,
	StatusAdmitted, StatusInTriage, StatusInInfusion, StatusSuspended, StatusRescheduled,
	StatusIncident, StatusCompleted,
}

var (
	generalPreCheckin  = []string{StatusScheduled, StatusRescheduled}
	generalPostCheckin = []string{StatusScheduled, StatusRescheduled, StatusCompleted}
	infusionPreCheckin = []string{
		StatusScheduled, StatusAwaitingConsultation, StatusAwaitingExam, StatusAwaitingMedication,
		StatusAdmitted, StatusSuspended, StatusRescheduled,
	}
)

// BatchStatuses are the statuses that may be applied to many appointments
// at once. Statuses that need a reason or a new date are excluded.
var BatchStatuses = []string{
	StatusScheduled, StatusAwaitingConsultation, StatusAwaitingExam, StatusAwaitingMedication,
	StatusAdmitted, StatusInTriage, StatusInInfusion, StatusCompleted,
}

// Pharmacy statuses of an infusion.
const (
	PharmacyScheduled              = "scheduled"
	PharmacyAwaitingPrescription   = "awaiting-prescription"
	PharmacyValidatingPrescription = "validating-prescription"
	PharmacyPending                = "pending"
	PharmacyInPreparation          = "in-preparation"
	PharmacyReady                  = "ready"
	PharmacySent                   = "sent"
	PharmacyDrugShortage           = "drug-shortage"
	PharmacyCourtOrderedShortage   = "court-ordered-drug-shortage"
	PharmacyNoAuthorization        = "no-authorization"
	PharmacyPrescriptionReturned   = "prescription-returned"
)

var pharmacyStatuses = map[string]bool{
	PharmacyScheduled: true, PharmacyAwaitingPrescription: true, PharmacyValidatingPrescription: true,
	PharmacyPending: true, PharmacyInPreparation: true, PharmacyReady: true, PharmacySent: true,
	PharmacyDrugShortage: true, PharmacyCourtOrderedShortage: true, PharmacyNoAuthorization: true,
	PharmacyPrescriptionReturned: true,
}

func ValidStatus(s string) bool { return contains(AllStatuses, s) }

func ValidPharmacyStatus(s string) bool { return pharmacyStatuses[s] }

// StatusOptions returns the statuses offered for an appointment of the
// given type and check-in state.
func StatusOptions(apptType string, checkedIn bool) []string {
	switch {
	case apptType == capacity.TypeInfusion && checkedIn:
		return AllStatuses
	case apptType == capacity.TypeInfusion:
		return infusionPreCheckin
	case checkedIn:
		return generalPostCheckin
	default:
		return generalPreCheckin
	}
}

// RequiresPresence reports whether the status means the patient is in the
// clinic, which locks the check-in.
func RequiresPresence(status string) bool {
	return !contains(infusionPreCheckin, status)
}

// NeedsReason reports whether moving to the status must be justified.
func NeedsReason(status string) bool {
	return status == StatusSuspended || status == StatusIncident
}

// PharmacyLocked reports whether the pharmacy workflow of an appointment
// is frozen because the appointment no longer takes place.
func PharmacyLocked(status string) bool {
	return status == StatusSuspended || status == StatusRescheduled
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

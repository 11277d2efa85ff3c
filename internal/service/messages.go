package service

import (
	"fmt"

	"github.com/iliyamo/place-reservation/internal/datetime"
	"github.com/iliyamo/place-reservation/internal/model"
)

// Notification is what the engine hands to the Notifier after a commit.
// Title and Message go to the staff watching the reservation's house;
// when ToOccupant is set the occupant also receives the status message
// for the reservation's new status.
type Notification struct {
	Title       string
	Message     string
	Reservation model.Reservation
	ToOccupant  bool
}

func requestedNotice(r model.Reservation) Notification {
	return Notification{
		Title:       "Demande de réservation",
		Message:     "Nouvelle demande de réservation au nom de: " + r.Occupant.FullName(),
		Reservation: r,
	}
}

func bookedNotice(r model.Reservation) Notification {
	return Notification{
		Title:       "Nouvelle Réservation",
		Message:     "Nouvelle réservation enregistrée au nom de: " + r.Occupant.FullName(),
		Reservation: r,
		ToOccupant:  true,
	}
}

func startedNotice(r model.Reservation) Notification {
	return Notification{
		Title:       "Réservation démarrée.",
		Message:     "Réservation démarrée au nom de: " + r.Occupant.FullName(),
		Reservation: r,
		ToOccupant:  true,
	}
}

func acceptedNotice(r model.Reservation) Notification {
	return Notification{
		Title:       "Demande de réservation acceptée.",
		Message:     "Réservation acceptée au nom de: " + r.Occupant.FullName(),
		Reservation: r,
		ToOccupant:  true,
	}
}

func cancelledNotice(r model.Reservation) Notification {
	return Notification{
		Title:       "Réservation annulée",
		Message:     "Réservation annulée pour: " + r.Occupant.FullName(),
		Reservation: r,
		ToOccupant:  true,
	}
}

func extendedNotice(r model.Reservation) Notification {
	msg := "Prolongation de réservation pour : " + r.Occupant.FullName() + "."
	if r.EndDate != nil {
		end := *r.EndDate
		msg += fmt.Sprintf(" Jusqu'au %s à %d:%d", datetime.FormatDate(end), end.Hour(), end.Minute())
	}
	return Notification{
		Title:       "Réservation prolongée.",
		Message:     msg,
		Reservation: r,
	}
}

func endedNotice(r model.Reservation) Notification {
	return Notification{
		Title:       "Réservation terminée.",
		Message:     "Réservation terminée pour: " + r.Occupant.FullName(),
		Reservation: r,
		ToOccupant:  true,
	}
}

// OccupantStatusMessage is the text sent to the occupant when their
// reservation reaches status.
func OccupantStatusMessage(status model.ReservationStatus) string {
	switch status {
	case model.StatusAccepted:
		return "Votre réservation a été acceptée. Nous vous contacterons sous peu. Pour procéder au paiement."
	case model.StatusCancelled:
		return "Votre réservation a été annulée."
	case model.StatusEnded:
		return "Votre réservation est terminée. Nous espérons que vous avez passé un bon séjour."
	case model.StatusInProgress:
		return "Votre réservation vient de démarée. Bon séjour!"
	default:
		return "Réservation mise à jour"
	}
}

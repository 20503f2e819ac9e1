package httpgin

type CreateReservationRequest struct {
	ID     string `json:"id" binding:"omitempty,uuid"`
	GiftID string `json:"giftId" binding:"required"`
	SlotID string `json:"slotId" binding:"required"`
}

type CreateReservationResponse struct {
	ReservationID string `json:"reservationId"`
}

// GiftRequest is shared by create and update. The id is optional: create
// generates one when absent, update takes it from the path.
type GiftRequest struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	FromName        string `json:"fromName"`
	FromPhoneNumber string `json:"fromPhoneNumber"`
	FromLanguage    string `json:"fromLanguage"`
	ToName          string `json:"toName"`
	ToAddress       string `json:"toAddress"`
	Message         string `json:"message"`
}

type BatchCreateSlotsRequest struct {
	Slots []SlotInput `json:"slots" binding:"required,min=1,dive"`
}

type SlotInput struct {
	ID     string `json:"id" binding:"required"`
	Region string `json:"region" binding:"required"`
	Date   string `json:"date" binding:"required,len=8"`
	Time   string `json:"time" binding:"required,len=5"`
	Status string `json:"status"`
}

type ItineraryInput struct {
	Region   string `json:"region" binding:"required"`
	FromDate string `json:"fromDate" binding:"required,len=8"`
	FromTime string `json:"fromTime" binding:"required,len=5"`
	ToDate   string `json:"toDate" binding:"required,len=8"`
	ToTime   string `json:"toTime" binding:"required,len=5"`
}

type UpsertArtistRequest struct {
	ID          string           `json:"id" binding:"required"`
	Name        string           `json:"name" binding:"required"`
	PhoneNumber string           `json:"phoneNumber"`
	Itineraries []ItineraryInput `json:"itineraries" binding:"dive"`
}

type SetAppStateRequest struct {
	State string `json:"state" binding:"required"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

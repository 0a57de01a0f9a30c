package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/araddon/dateparse"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/courier-forge/courier/internal/identity"
	"github.com/courier-forge/courier/internal/routing"
	"github.com/courier-forge/courier/internal/server"
	"github.com/courier-forge/courier/pkg/models"
)

// maxUploadBytes bounds multipart submissions.
const maxUploadBytes = 32 << 20

// submitRecipient is one addressee in the submission's recipient JSON array.
type submitRecipient struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// SubmitFormResponse is the success body for POST /submit-form.
type SubmitFormResponse struct {
	Message      string `json:"message"`
	DocumentCode string `json:"documentCode"`
}

// SubmitFormHandler handles document submissions.
// Endpoint: POST /submit-form (multipart)
func SubmitFormHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logArgs := []any{
			"method", r.Method,
			"path", r.URL.Path,
		}

		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			srv.Logger.Warn("error parsing multipart form",
				append([]interface{}{"error", err}, logArgs...)...)
			respondError(w, http.StatusBadRequest, "Invalid form data")
			return
		}

		var sender identity.Profile
		if err := json.Unmarshal([]byte(r.FormValue("sender")), &sender); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid JSON format")
			return
		}
		var recipients []submitRecipient
		if err := json.Unmarshal([]byte(r.FormValue("recipient")), &recipients); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid JSON format")
			return
		}

		recipientEmails := make([]string, 0, len(recipients))
		for _, rec := range recipients {
			recipientEmails = append(recipientEmails, rec.Email)
		}

		dateOfLetter, err := parseDate(r.FormValue("dateOfLetter"))
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid dateOfLetter")
			return
		}
		deadline, err := parseDate(r.FormValue("deadline"))
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid deadline")
			return
		}

		// The blob is written before the document row ever references it;
		// if the submission fails afterwards the orphaned blob is cleaned
		// up out of band.
		var fileName *string
		if file, header, err := r.FormFile("file"); err == nil {
			defer file.Close()
			stored, err := srv.Attachments.Save(header.Filename, file)
			if err != nil {
				srv.Logger.Error("error storing attachment",
					append([]interface{}{"error", err}, logArgs...)...)
				respondError(w, http.StatusInternalServerError,
					"An error occurred during form submission")
				return
			}
			fileName = &stored
		}

		doc, err := srv.Routing.Submit(r.Context(), routing.SubmitInput{
			Code:            r.FormValue("documentId"),
			Sender:          sender,
			RecipientEmails: recipientEmails,
			Subject:         r.FormValue("subject"),
			Description:     r.FormValue("description"),
			Priority:        r.FormValue("prioritization"),
			Classification:  r.FormValue("classification"),
			DateOfLetter:    dateOfLetter,
			Deadline:        deadline,
			FileName:        fileName,
		})
		if err != nil {
			srv.Logger.Warn("document submission failed",
				append([]interface{}{"error", err}, logArgs...)...)
			switch {
			case errors.Is(err, models.ErrDuplicateCode):
				respondError(w, http.StatusBadRequest, "Document ID already exists.")
			case errors.Is(err, models.ErrNotFound):
				respondError(w, http.StatusNotFound, "Recipient not found.")
			case errors.Is(err, models.ErrTransient):
				respondError(w, http.StatusInternalServerError,
					"An error occurred during form submission")
			default:
				respondError(w, http.StatusBadRequest, err.Error())
			}
			return
		}

		respondJSON(w, http.StatusCreated, SubmitFormResponse{
			Message:      "Form submitted successfully",
			DocumentCode: doc.Code,
		})
	})
}

// RecipientStatusRequest is the body for PUT /update-recipient-status.
type RecipientStatusRequest struct {
	RecipientEmail string `json:"recipient_email"`
	Status         string `json:"status"`
}

// Validate validates the request.
func (req RecipientStatusRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.RecipientEmail, validation.Required, is.Email),
		validation.Field(&req.Status, validation.Required,
			validation.In(models.StatusPending, models.StatusReceived,
				models.StatusArchived, models.StatusEnded)),
	)
}

// RecipientStatusHandler updates one recipient's delivery status.
// Endpoint: PUT /update-recipient-status/{documentCode}
func RecipientStatusHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logArgs := []any{
			"method", r.Method,
			"path", r.URL.Path,
		}

		if r.Method != "PUT" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		segments := parsePathSegments(r.URL.Path, "/update-recipient-status")
		if len(segments) != 1 {
			respondError(w, http.StatusBadRequest, "Document code required")
			return
		}
		code := segments[0]

		var req RecipientStatusRequest
		if err := decodeRequest(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "Bad request")
			return
		}
		if err := req.Validate(); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		if err := srv.Routing.SetStatus(
			r.Context(), code, req.RecipientEmail, req.Status,
		); err != nil {
			srv.Logger.Warn("status update failed",
				append([]interface{}{"error", err}, logArgs...)...)
			switch {
			case errors.Is(err, models.ErrInvalidTransition):
				respondError(w, http.StatusBadRequest, err.Error())
			case errors.Is(err, models.ErrNotFound):
				respondError(w, http.StatusNotFound, "Recipient or document not found")
			default:
				respondError(w, statusForError(err),
					"An error occurred while updating the status")
			}
			return
		}

		respondJSON(w, http.StatusOK, map[string]string{
			"message": "Recipient status updated successfully",
		})
	})
}

// ForwardRequest is the body for POST /forward-document.
type ForwardRequest struct {
	RecipientEmail string `json:"recipientEmail"`
}

// ForwardHandler forwards a document to a new recipient.
// Endpoint: POST /forward-document/{documentCode}
func ForwardHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logArgs := []any{
			"method", r.Method,
			"path", r.URL.Path,
		}

		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		segments := parsePathSegments(r.URL.Path, "/forward-document")
		if len(segments) != 1 {
			respondError(w, http.StatusBadRequest, "Document code required")
			return
		}
		code := segments[0]

		var req ForwardRequest
		if err := decodeRequest(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "Bad request")
			return
		}
		if err := validation.Validate(req.RecipientEmail,
			validation.Required, is.Email); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		err := srv.Routing.Forward(r.Context(), code, "", req.RecipientEmail)
		if err != nil {
			srv.Logger.Warn("forward failed",
				append([]interface{}{"error", err}, logArgs...)...)
			switch {
			case errors.Is(err, models.ErrDuplicateRecipient):
				respondError(w, http.StatusBadRequest,
					"Recipient has already received this document.")
			case errors.Is(err, models.ErrNotFound):
				respondError(w, http.StatusNotFound, err.Error())
			default:
				respondError(w, statusForError(err),
					"An error occurred while forwarding the document.")
			}
			return
		}

		respondJSON(w, http.StatusCreated, map[string]string{
			"message": "Document forwarded successfully.",
		})
	})
}

// DeleteRecipientHandler removes the caller's own recipient entry.
// Endpoint: DELETE /delete-recipient/{documentCode}/{recipientEmail}
func DeleteRecipientHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logArgs := []any{
			"method", r.Method,
			"path", r.URL.Path,
		}

		if r.Method != "DELETE" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		segments := parsePathSegments(r.URL.Path, "/delete-recipient")
		if len(segments) != 2 {
			respondError(w, http.StatusBadRequest,
				"Document code and recipient email required")
			return
		}

		if err := srv.Routing.RemoveRecipient(
			r.Context(), segments[0], segments[1],
		); err != nil {
			srv.Logger.Warn("recipient deletion failed",
				append([]interface{}{"error", err}, logArgs...)...)
			respondError(w, statusForError(err), "Recipient not found")
			return
		}

		respondJSON(w, http.StatusOK, map[string]string{
			"message": "Recipient deleted successfully",
		})
	})
}

// documentRecipient is one addressee in a document listing.
type documentRecipient struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Status string `json:"status"`
}

// documentListing is the document shape the read surface has always
// exposed; field names mirror the original SQL aliases.
type documentListing struct {
	DocumentID      uint                `json:"document_id"`
	DocumentCode    string              `json:"document_code"`
	Subject         string              `json:"subject"`
	Description     string              `json:"description"`
	Prioritization  string              `json:"prioritization"`
	DateOfLetter    time.Time           `json:"date_of_letter"`
	Classification  string              `json:"classification"`
	Deadline        time.Time           `json:"deadline"`
	FileName        *string             `json:"file_name"`
	CreatedAt       time.Time           `json:"created_at"`
	SenderID        uint                `json:"sender_id"`
	SenderName      string              `json:"sender_name"`
	SenderEmail     string              `json:"sender_email,omitempty"`
	RecipientStatus string              `json:"recipient_status,omitempty"`
	Recipients      []documentRecipient `json:"recipients"`
}

func toListing(doc models.Document) documentListing {
	listing := documentListing{
		DocumentID:     doc.ID,
		DocumentCode:   doc.Code,
		Subject:        doc.Subject,
		Description:    doc.Description,
		Prioritization: doc.Priority,
		DateOfLetter:   doc.DateOfLetter,
		Classification: doc.Classification,
		Deadline:       doc.Deadline,
		FileName:       doc.FileName,
		CreatedAt:      doc.CreatedAt,
		SenderID:       doc.SenderID,
		Recipients:     []documentRecipient{},
	}
	if doc.Sender != nil {
		listing.SenderName = doc.Sender.FullName()
		listing.SenderEmail = doc.Sender.Email
	}
	return listing
}

// attachRecipients loads the recipient lists for each listing.
func attachRecipients(srv server.Server, listings []documentListing) error {
	for i := range listings {
		recipients, err := models.ListRecipientsByDocument(srv.DB, listings[i].DocumentCode)
		if err != nil {
			return err
		}
		for _, rec := range recipients {
			dr := documentRecipient{Status: rec.Status}
			if rec.User != nil {
				dr.Name = rec.User.FullName()
				dr.Email = rec.User.Email
			}
			listings[i].Recipients = append(listings[i].Recipients, dr)
		}
	}
	return nil
}

// IncomingDocumentsHandler lists the documents addressed to a recipient,
// most recent first, each with its full recipient list and the viewer's own
// status.
// Endpoint: GET /get-documents/{recipientEmail}
func IncomingDocumentsHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logArgs := []any{
			"method", r.Method,
			"path", r.URL.Path,
		}

		if r.Method != "GET" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		segments := parsePathSegments(r.URL.Path, "/get-documents")
		if len(segments) != 1 {
			respondError(w, http.StatusBadRequest, "Recipient email required")
			return
		}

		viewer, err := srv.Identity.Resolve(r.Context(), segments[0])
		if err != nil {
			// Unknown recipients simply have no incoming documents.
			respondJSON(w, http.StatusOK, []documentListing{})
			return
		}

		docs, err := models.ListDocumentsByRecipient(srv.DB, viewer.ID)
		if err != nil {
			srv.Logger.Error("error fetching documents",
				append([]interface{}{"error", err}, logArgs...)...)
			respondError(w, http.StatusInternalServerError,
				"An error occurred while fetching documents")
			return
		}

		listings := make([]documentListing, 0, len(docs))
		for _, doc := range docs {
			listings = append(listings, toListing(doc))
		}
		if err := attachRecipients(srv, listings); err != nil {
			srv.Logger.Error("error fetching recipients",
				append([]interface{}{"error", err}, logArgs...)...)
			respondError(w, http.StatusInternalServerError,
				"An error occurred while fetching documents")
			return
		}

		// Surface the viewer's own delivery status per document.
		for i := range listings {
			for _, rec := range listings[i].Recipients {
				if rec.Email == viewer.Email {
					listings[i].RecipientStatus = rec.Status
					break
				}
			}
		}

		respondJSON(w, http.StatusOK, listings)
	})
}

// SentDocumentsHandler lists the documents a sender submitted, most recent
// first.
// Endpoint: GET /get-sent-documents/{senderEmail}
func SentDocumentsHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logArgs := []any{
			"method", r.Method,
			"path", r.URL.Path,
		}

		if r.Method != "GET" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		segments := parsePathSegments(r.URL.Path, "/get-sent-documents")
		if len(segments) != 1 {
			respondError(w, http.StatusBadRequest, "Sender email required")
			return
		}

		sender, err := srv.Identity.Resolve(r.Context(), segments[0])
		if err != nil {
			respondError(w, http.StatusNotFound, "Sender not found")
			return
		}

		docs, err := models.ListDocumentsBySender(srv.DB, sender.ID)
		if err != nil {
			srv.Logger.Error("error fetching sent documents",
				append([]interface{}{"error", err}, logArgs...)...)
			respondError(w, http.StatusInternalServerError,
				"An error occurred while fetching documents")
			return
		}

		listings := make([]documentListing, 0, len(docs))
		for _, doc := range docs {
			listings = append(listings, toListing(doc))
		}
		if err := attachRecipients(srv, listings); err != nil {
			srv.Logger.Error("error fetching recipients",
				append([]interface{}{"error", err}, logArgs...)...)
			respondError(w, http.StatusInternalServerError,
				"An error occurred while fetching documents")
			return
		}

		respondJSON(w, http.StatusOK, listings)
	})
}

// AllDocumentsResponse is the body for GET /documents.
type AllDocumentsResponse struct {
	Success   bool              `json:"success"`
	Documents []documentListing `json:"documents"`
}

// AllDocumentsHandler lists every document, most recent first.
// Endpoint: GET /documents
func AllDocumentsHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		docs, err := models.ListAllDocuments(srv.DB)
		if err != nil {
			srv.Logger.Error("error fetching documents", "error", err)
			respondJSON(w, http.StatusInternalServerError, AllDocumentsResponse{})
			return
		}

		listings := make([]documentListing, 0, len(docs))
		for _, doc := range docs {
			listings = append(listings, toListing(doc))
		}

		respondJSON(w, http.StatusOK, AllDocumentsResponse{
			Success:   true,
			Documents: listings,
		})
	})
}

// trackingEventResponse mirrors the original tracking row shape.
type trackingEventResponse struct {
	TrackingID   uint      `json:"tracking_id"`
	DocumentCode string    `json:"document_code"`
	UserID       uint      `json:"user_id"`
	Action       string    `json:"action"`
	ActionDate   time.Time `json:"action_date"`
}

// TrackingHandler returns the tracking history for a document code,
// ascending.
// Endpoint: GET /document-tracking/{documentCode}
func TrackingHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		segments := parsePathSegments(r.URL.Path, "/document-tracking")
		if len(segments) != 1 {
			respondError(w, http.StatusBadRequest, "Document code required")
			return
		}

		events, err := srv.Routing.History(r.Context(), segments[0])
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				respondError(w, http.StatusNotFound,
					"No actions found for this document code.")
				return
			}
			srv.Logger.Error("error fetching tracking history", "error", err)
			respondError(w, http.StatusInternalServerError,
				"An error occurred while fetching the document actions.")
			return
		}

		resp := make([]trackingEventResponse, 0, len(events))
		for _, event := range events {
			resp = append(resp, trackingEventResponse{
				TrackingID:   event.ID,
				DocumentCode: event.DocumentCode,
				UserID:       event.UserID,
				Action:       event.Action,
				ActionDate:   event.ActionDate,
			})
		}

		respondJSON(w, http.StatusOK, resp)
	})
}

// HealthHandler reports server liveness.
// Endpoint: GET /health
func HealthHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sqlDB, err := srv.DB.DB()
		if err != nil || sqlDB.Ping() != nil {
			respondError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := dateparse.ParseAny(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable date %q: %w", value, err)
	}
	return t, nil
}

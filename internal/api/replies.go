package api

import (
	"errors"
	"net/http"

	"github.com/courier-forge/courier/internal/server"
	"github.com/courier-forge/courier/internal/thread"
	"github.com/courier-forge/courier/pkg/models"
)

// SubmitReplyResponse is the success body for POST /submit-reply.
type SubmitReplyResponse struct {
	Message string `json:"message"`
	ReplyID uint   `json:"replyId"`
}

// SubmitReplyHandler stores a reply against a document.
// Endpoint: POST /submit-reply (multipart)
func SubmitReplyHandler(srv server.Server) http.Handler {
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
			respondError(w, http.StatusBadRequest, "Invalid form data")
			return
		}

		documentID, err := parseID("documentID", r.FormValue("document_id"))
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		authorID, err := parseID("userID", r.FormValue("user_id"))
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		receiverID, err := parseID("receiverID", r.FormValue("receiver_id"))
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		text := r.FormValue("reply_text")
		if text == "" {
			respondError(w, http.StatusBadRequest, "Reply text is required")
			return
		}

		var fileName *string
		if file, header, err := r.FormFile("file"); err == nil {
			defer file.Close()
			stored, err := srv.Attachments.Save(header.Filename, file)
			if err != nil {
				srv.Logger.Error("error storing reply attachment",
					append([]interface{}{"error", err}, logArgs...)...)
				respondError(w, http.StatusInternalServerError,
					"An error occurred while submitting the reply")
				return
			}
			fileName = &stored
		}

		reply, err := srv.Threads.Post(r.Context(), thread.PostInput{
			DocumentID: documentID,
			AuthorID:   authorID,
			ReceiverID: receiverID,
			Text:       text,
			FileName:   fileName,
		})
		if err != nil {
			srv.Logger.Warn("reply submission failed",
				append([]interface{}{"error", err}, logArgs...)...)
			if errors.Is(err, models.ErrNotFound) {
				respondError(w, http.StatusNotFound, "Document not found")
				return
			}
			respondError(w, statusForError(err),
				"An error occurred while submitting the reply")
			return
		}

		respondJSON(w, http.StatusCreated, SubmitReplyResponse{
			Message: "Reply submitted successfully",
			ReplyID: reply.ID,
		})
	})
}

// RepliesHandler lists every reply, annotated for display.
// Endpoint: GET /get-replies
func RepliesHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		replies, err := srv.Threads.ListAll(r.Context())
		if err != nil {
			srv.Logger.Error("error retrieving replies", "error", err)
			respondError(w, http.StatusInternalServerError,
				"An error occurred while retrieving replies")
			return
		}
		if len(replies) == 0 {
			respondError(w, http.StatusNotFound, "No replies found")
			return
		}

		respondJSON(w, http.StatusOK, replies)
	})
}

// RepliesByReceiverHandler lists the replies addressed to a user.
// Endpoint: GET /get-replies/{receiverId}
func RepliesByReceiverHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		segments := parsePathSegments(r.URL.Path, "/get-replies")
		if len(segments) != 1 {
			respondError(w, http.StatusBadRequest, "Receiver ID is required")
			return
		}
		receiverID, err := parseID("receiverID", segments[0])
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		replies, err := srv.Threads.ListByReceiver(r.Context(), receiverID)
		if err != nil {
			srv.Logger.Error("error retrieving replies", "error", err)
			respondError(w, http.StatusInternalServerError,
				"An error occurred while retrieving replies")
			return
		}
		if len(replies) == 0 {
			respondError(w, http.StatusNotFound,
				"No replies found for this receiver ID")
			return
		}

		respondJSON(w, http.StatusOK, replies)
	})
}

// RepliesByDocumentHandler lists the replies on a document.
// Endpoint: GET /get-replies-by-docx/{documentId}
func RepliesByDocumentHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		segments := parsePathSegments(r.URL.Path, "/get-replies-by-docx")
		if len(segments) != 1 {
			respondError(w, http.StatusBadRequest, "Document ID is required")
			return
		}
		documentID, err := parseID("documentID", segments[0])
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		replies, err := srv.Threads.ListByDocument(r.Context(), documentID)
		if err != nil {
			srv.Logger.Error("error retrieving replies", "error", err)
			respondError(w, http.StatusInternalServerError,
				"An error occurred while retrieving replies")
			return
		}
		if len(replies) == 0 {
			respondError(w, http.StatusNotFound,
				"No replies found for this document ID")
			return
		}

		respondJSON(w, http.StatusOK, replies)
	})
}

// MarkSeenRequest is the body for POST /mark-replies-seen.
type MarkSeenRequest struct {
	DocumentID uint `json:"document_id"`
}

// MarkSeenHandler marks the counterpart's replies on a document as seen.
// Endpoint: POST /mark-replies-seen/{userId}
func MarkSeenHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logArgs := []any{
			"method", r.Method,
			"path", r.URL.Path,
		}

		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		segments := parsePathSegments(r.URL.Path, "/mark-replies-seen")
		if len(segments) != 1 {
			respondError(w, http.StatusUnauthorized, "User not authenticated")
			return
		}
		viewerID, err := parseID("userID", segments[0])
		if err != nil {
			respondError(w, http.StatusUnauthorized, "User not authenticated")
			return
		}

		var req MarkSeenRequest
		if err := decodeRequest(r, &req); err != nil || req.DocumentID == 0 {
			respondError(w, http.StatusBadRequest, "Document ID is required")
			return
		}

		affected, err := srv.Threads.MarkSeen(r.Context(), req.DocumentID, viewerID)
		if err != nil {
			srv.Logger.Error("error marking replies as seen",
				append([]interface{}{"error", err}, logArgs...)...)
			respondError(w, http.StatusInternalServerError,
				"An error occurred while marking replies as seen")
			return
		}
		if affected == 0 {
			respondError(w, http.StatusNotFound,
				"No replies found for this document ID")
			return
		}

		respondJSON(w, http.StatusOK, map[string]string{
			"message": "Replies marked as seen",
		})
	})
}

// UnseenCountResponse is the body for the unseen-count endpoints.
type UnseenCountResponse struct {
	NotSeenCount int64 `json:"notSeenCount"`
}

// UnseenForReceiverHandler counts unseen replies addressed to the user.
// Endpoint: GET /count-not-seen-replies/{id}
func UnseenForReceiverHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		segments := parsePathSegments(r.URL.Path, "/count-not-seen-replies")
		if len(segments) != 1 {
			respondError(w, http.StatusBadRequest, "Sender ID is required")
			return
		}
		userID, err := parseID("senderID", segments[0])
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		count, err := srv.Threads.CountUnseenForReceiver(r.Context(), userID)
		if err != nil {
			srv.Logger.Error("error counting unseen replies", "error", err)
			respondError(w, http.StatusInternalServerError,
				"An error occurred while counting unseen replies for sender")
			return
		}

		respondJSON(w, http.StatusOK, UnseenCountResponse{NotSeenCount: count})
	})
}

// UnseenExcludingUserHandler counts unseen replies addressed to anyone but
// the user. Separate contract from UnseenForReceiverHandler.
// Endpoint: GET /count-not-seen-replies/user/{id}
func UnseenExcludingUserHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		segments := parsePathSegments(r.URL.Path, "/count-not-seen-replies/user")
		if len(segments) != 1 {
			respondError(w, http.StatusBadRequest, "User ID is required")
			return
		}
		userID, err := parseID("userID", segments[0])
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		count, err := srv.Threads.CountUnseenExcludingUser(r.Context(), userID)
		if err != nil {
			srv.Logger.Error("error counting unseen replies", "error", err)
			respondError(w, http.StatusInternalServerError,
				"An error occurred while counting unseen replies for user")
			return
		}

		respondJSON(w, http.StatusOK, UnseenCountResponse{NotSeenCount: count})
	})
}

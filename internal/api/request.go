package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/JakeFAU/botrelay/internal/relay"
)

const maxBodyBytes = 1 << 20

// decodeRegisterRequest accepts either a JSON object or an urlencoded form.
// An empty body decodes to an empty request so validation can name every
// missing field.
func decodeRegisterRequest(w http.ResponseWriter, r *http.Request) (relay.RegisterRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req relay.RegisterRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return req, relay.ValidationError("Invalid form body.")
		}
		return registerRequestFromForm(r), nil
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			return req, relay.ValidationError("Invalid multipart form body.")
		}
		return registerRequestFromForm(r), nil
	default:
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return req, relay.ValidationError("Request body too large.")
			}
			return req, relay.ValidationError("Invalid JSON body.")
		}
		return req, nil
	}
}

func registerRequestFromForm(r *http.Request) relay.RegisterRequest {
	return relay.RegisterRequest{
		AuthCode:   r.PostFormValue("authCode"),
		AltAccount: r.PostFormValue("altAccount"),
		BotName:    r.PostFormValue("botName"),
		CategoryID: r.PostFormValue("categoryId"),
	}
}

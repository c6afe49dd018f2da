package response

import (
	"encoding/json"
	"net/http"

	"github.com/edvin/dbmanager/internal/model"
)

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteResponse writes a lifecycle response: its status code and its
// {"message": ...} body, with the error tag in X-Error-Type.
func WriteResponse(w http.ResponseWriter, resp model.Response) {
	w.Header().Set("Content-Type", "application/json")
	if resp.Error != "" {
		w.Header().Set("X-Error-Type", resp.Error)
	}
	w.WriteHeader(resp.StatusCode)
	w.Write([]byte(resp.Body))
}

package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"tradetalk/pkg/logger"
	"tradetalk/pkg/models"
	"tradetalk/pkg/store"
	"tradetalk/pkg/utils"
	"tradetalk/pkg/validation"

	"github.com/gorilla/mux"
)

// Directory endpoints are how the marketplace backend provisions the
// identity records messaging resolves against. Frontend keys cannot
// reach them.

func createAccount(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !requireBackend(w, r) {
		return
	}
	var a models.Account
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if a.ID == "" {
		a.ID = utils.GenAccountID()
	}
	if err := validation.ValidateID(a.ID); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(a.DisplayName) == "" {
		utils.JSONError(w, http.StatusBadRequest, "display_name is required")
		return
	}
	if a.CreatedTS == 0 {
		a.CreatedTS = time.Now().UTC().UnixNano()
	}
	if err := store.SaveAccount(a); err != nil {
		writeStoreError(w, err)
		return
	}
	logger.Info("account_created", "id", a.ID)
	_ = utils.JSONWrite(w, http.StatusCreated, a)
}

func getAccount(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !requireBackend(w, r) {
		return
	}
	a, err := store.GetAccount(mux.Vars(r)["id"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, a)
}

func createContractor(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !requireBackend(w, r) {
		return
	}
	var c models.Contractor
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if c.ID == "" {
		c.ID = utils.GenContractorID()
	}
	if err := validation.ValidateID(c.ID); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if c.AccountID == "" {
		utils.JSONError(w, http.StatusBadRequest, "account_id is required")
		return
	}
	if strings.TrimSpace(c.BusinessName) == "" {
		utils.JSONError(w, http.StatusBadRequest, "business_name is required")
		return
	}
	if c.CreatedTS == 0 {
		c.CreatedTS = time.Now().UTC().UnixNano()
	}
	if err := store.SaveContractor(c); err != nil {
		if store.IsNotFound(err) {
			utils.JSONError(w, http.StatusNotFound, "owning account not found")
			return
		}
		writeStoreError(w, err)
		return
	}
	logger.Info("contractor_created", "id", c.ID, "account", c.AccountID)
	_ = utils.JSONWrite(w, http.StatusCreated, c)
}

func getContractor(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !requireBackend(w, r) {
		return
	}
	c, err := store.GetContractor(mux.Vars(r)["id"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, c)
}

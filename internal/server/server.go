// SPDX-FileCopyrightText: 2026 nova-powervm authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/UbuntuEvangelist/nova-powervm/internal/vifevent"
	"github.com/go-logr/logr"
)

// Server accepts external readiness events from the network stack and feeds
// them into the event hub. The network stack reports completion or failure
// of an interface plug out-of-band, after the hypervisor-side adapter was
// created.
type Server struct {
	log logr.Logger
	hub *vifevent.Hub
}

func New(log logr.Logger, hub *vifevent.Hub) (*Server, error) {
	if hub == nil {
		return nil, fmt.Errorf("must specify event hub")
	}

	return &Server{
		log: log,
		hub: hub,
	}, nil
}

// ExternalEvent is one readiness notification. Name is the event type
// (e.g. network-vif-plugged), Tag the interface identifier it refers to.
type ExternalEvent struct {
	Name   string `json:"name"`
	Tag    string `json:"tag"`
	Status string `json:"status,omitempty"`
}

const StatusFailed = "failed"

type externalEventsRequest struct {
	Events []ExternalEvent `json:"events"`
}

type externalEventResult struct {
	Name     string `json:"name"`
	Tag      string `json:"tag"`
	Accepted bool   `json:"accepted"`
}

type externalEventsResponse struct {
	Results []externalEventResult `json:"results"`
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /external-events", s.handleExternalEvents)
	return mux
}

func (s *Server) handleExternalEvents(w http.ResponseWriter, r *http.Request) {
	var req externalEventsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}

	resp := externalEventsResponse{}
	for _, ev := range req.Events {
		key := fmt.Sprintf("%s:%s", ev.Name, ev.Tag)
		failed := ev.Status == StatusFailed

		accepted := s.hub.Notify(key, failed)
		s.log.V(1).Info("Received external event",
			"name", ev.Name, "tag", ev.Tag, "failed", failed, "accepted", accepted)

		resp.Results = append(resp.Results, externalEventResult{
			Name:     ev.Name,
			Tag:      ev.Tag,
			Accepted: accepted,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Error(err, "failed to encode response")
	}
}

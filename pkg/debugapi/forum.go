// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debugapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/zapek/gxs/pkg/forum"
	"github.com/zapek/gxs/pkg/gxs"
)

type forumResponse struct {
	Id          gxs.Id    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Published   time.Time `json:"published"`
	LastPosted  time.Time `json:"lastPosted"`
	Subscribed  bool      `json:"subscribed"`
	External    bool      `json:"external"`
}

func toForumResponse(f *forum.Forum) forumResponse {
	return forumResponse{
		Id:          f.Meta.Id,
		Name:        f.Meta.Name,
		Description: f.Description,
		Published:   f.Meta.Published,
		LastPosted:  f.Meta.LastPosted,
		Subscribed:  f.Meta.Subscribed,
		External:    f.Meta.External,
	}
}

func (s *Service) forumsHandler(w http.ResponseWriter, _ *http.Request) {
	forums, err := s.forums.Forums()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]forumResponse, 0, len(forums))
	for _, f := range forums {
		out = append(out, toForumResponse(f))
	}
	s.respond(w, http.StatusOK, out)
}

type forumCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Service) forumCreateHandler(w http.ResponseWriter, r *http.Request) {
	var req forumCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "malformed request")
		return
	}
	if req.Name == "" {
		s.respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	f, err := s.forums.CreateForum(r.Context(), req.Name, req.Description)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respond(w, http.StatusCreated, toForumResponse(f))
}

func (s *Service) forumHandler(w http.ResponseWriter, r *http.Request) {
	id, err := gxs.ParseHexId(mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "malformed forum id")
		return
	}
	f, err := s.forums.Forum(id)
	if errors.Is(err, forum.ErrForumNotFound) {
		s.respondError(w, http.StatusNotFound, "forum not found")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respond(w, http.StatusOK, toForumResponse(f))
}

type postResponse struct {
	Id        gxs.MessageId `json:"id"`
	ParentId  gxs.MessageId `json:"parentId"`
	Author    gxs.Id        `json:"author"`
	Name      string        `json:"name"`
	Body      string        `json:"body"`
	Published time.Time     `json:"published"`
}

func (s *Service) postsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := gxs.ParseHexId(mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "malformed forum id")
		return
	}
	posts, err := s.forums.Posts(id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]postResponse, 0, len(posts))
	for _, p := range posts {
		out = append(out, postResponse{
			Id:        p.Meta.Id,
			ParentId:  p.Meta.ParentId,
			Author:    p.Meta.Author,
			Name:      p.Meta.Name,
			Body:      p.Body,
			Published: p.Meta.Published,
		})
	}
	s.respond(w, http.StatusOK, out)
}

type subscriptionRequest struct {
	Subscribed bool `json:"subscribed"`
}

func (s *Service) subscriptionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := gxs.ParseHexId(mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "malformed forum id")
		return
	}
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "malformed request")
		return
	}
	if err := s.forums.SetSubscribed(id, req.Subscribed); errors.Is(err, forum.ErrForumNotFound) {
		s.respondError(w, http.StatusNotFound, "forum not found")
		return
	} else if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respond(w, http.StatusOK, subscriptionRequest{Subscribed: req.Subscribed})
}

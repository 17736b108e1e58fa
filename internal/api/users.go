package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pathakanu/remindbot/internal/store"
)

func (s *Server) listUsers(c *gin.Context) {
	externalID, err := queryInt64(c, "external_id")
	if err != nil {
		s.writeError(c, err)
		return
	}
	users, err := s.store.ListUsers(c.Request.Context(), store.UserFilter{ExternalID: externalID})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (s *Server) createUser(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid request body: "+err.Error())
		return
	}
	in := store.UserInput{Username: req.Username.Value}
	if req.ExternalID != nil {
		in.ExternalID = *req.ExternalID
	}
	user, err := s.store.CreateUser(c.Request.Context(), in)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (s *Server) getUser(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	user, err := s.store.GetUser(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) updateUser(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid request body: "+err.Error())
		return
	}
	user, err := s.store.UpdateUser(c.Request.Context(), id, store.UserPatch{
		ExternalID: req.ExternalID,
		Username:   req.Username.optional(),
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) deleteUser(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if err := s.store.DeleteUser(c.Request.Context(), id); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

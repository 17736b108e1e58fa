package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pathakanu/remindbot/internal/store"
)

func (s *Server) listTags(c *gin.Context) {
	chatID, err := queryInt64(c, "chat_id")
	if err != nil {
		s.writeError(c, err)
		return
	}
	tags, err := s.store.ListTags(c.Request.Context(), store.TagFilter{ChatID: chatID})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tags)
}

func (s *Server) createTag(c *gin.Context) {
	var req tagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid request body: "+err.Error())
		return
	}
	var in store.TagInput
	if req.Name != nil {
		in.Name = *req.Name
	}
	if req.ChatID != nil {
		in.ChatID = *req.ChatID
	}
	tag, err := s.store.CreateTag(c.Request.Context(), in)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tag)
}

func (s *Server) getTag(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	tag, err := s.store.GetTag(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tag)
}

func (s *Server) updateTag(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	var req tagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid request body: "+err.Error())
		return
	}
	tag, err := s.store.UpdateTag(c.Request.Context(), id, store.TagPatch{Name: req.Name, ChatID: req.ChatID})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tag)
}

func (s *Server) deleteTag(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if err := s.store.DeleteTag(c.Request.Context(), id); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

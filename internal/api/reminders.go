package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pathakanu/remindbot/internal/schedule"
	"github.com/pathakanu/remindbot/internal/store"
)

// ScheduleResponse reports the next computed times of a reminder.
type ScheduleResponse struct {
	ReminderID       uint       `json:"reminder_id"`
	NextOccurrence   *time.Time `json:"next_occurrence"`
	NextNotification *time.Time `json:"next_notification"`
}

func (s *Server) listReminders(c *gin.Context) {
	userID, err := queryUint(c, "user_id")
	if err != nil {
		s.writeError(c, err)
		return
	}
	chatID, err := queryInt64(c, "chat_id")
	if err != nil {
		s.writeError(c, err)
		return
	}
	reminders, err := s.store.ListReminders(c.Request.Context(), store.ReminderFilter{UserID: userID, ChatID: chatID})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reminders)
}

func (s *Server) createReminder(c *gin.Context) {
	var req reminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid request body: "+err.Error())
		return
	}
	in, err := req.input(s.loc)
	if err != nil {
		s.writeError(c, err)
		return
	}
	reminder, err := s.store.CreateReminder(c.Request.Context(), in)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, reminder)
}

func (s *Server) getReminder(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	reminder, err := s.store.GetReminder(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reminder)
}

func (s *Server) updateReminder(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	var req reminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid request body: "+err.Error())
		return
	}
	patch, err := req.patch(s.loc)
	if err != nil {
		s.writeError(c, err)
		return
	}
	reminder, err := s.store.UpdateReminder(c.Request.Context(), id, patch)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reminder)
}

// deleteReminder requires ?user_id so the store can verify ownership.
func (s *Server) deleteReminder(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	requester, err := queryUint(c, "user_id")
	if err != nil {
		s.writeError(c, err)
		return
	}
	if requester == nil {
		s.badRequest(c, "user_id query parameter is required")
		return
	}
	if err := s.store.DeleteReminder(c.Request.Context(), id, *requester); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) reminderSchedule(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	reminder, err := s.store.GetReminder(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}

	now := s.now().In(s.loc)
	timing := reminder.Timing()
	occurrence, err := schedule.NextOccurrence(timing, now)
	if err != nil {
		s.writeError(c, err)
		return
	}
	notification, err := schedule.NextNotification(timing, now)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ScheduleResponse{
		ReminderID:       reminder.ID,
		NextOccurrence:   utcPtr(occurrence),
		NextNotification: utcPtr(notification),
	})
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

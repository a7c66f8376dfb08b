package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-fatigue/pkg/hub"
)

// handleStatus returns every known subject
func (s *Server) handleStatus(c *fiber.Ctx) error {
	subjects := s.Subjects()
	active := 0
	for _, st := range subjects {
		if st.Active {
			active++
		}
	}
	return c.JSON(fiber.Map{
		"subjects": subjects,
		"active":   active,
		"viewers":  s.results.ClientCount(),
	})
}

// handleSubject returns one subject's status
func (s *Server) handleSubject(c *fiber.Ctx) error {
	s.subjectsMu.RLock()
	st, ok := s.subjects[c.Params("id")]
	var snapshot SubjectStatus
	if ok {
		snapshot = *st
	}
	s.subjectsMu.RUnlock()

	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "subject not seen"})
	}
	return c.JSON(snapshot)
}

// handleAlerts returns the alert log, optionally for one subject
func (s *Server) handleAlerts(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	return c.JSON(s.Alerts(c.Query("subject"), limit))
}

// handleResultsWS streams updates; ?subject= narrows it to one subject.
// A snapshot of the current status is sent first.
func (s *Server) handleResultsWS(c *websocket.Conn) {
	subject := c.Query("subject")

	for _, st := range s.Subjects() {
		if subject != "" && st.SubjectID != subject {
			continue
		}
		if err := c.WriteJSON(Update{Type: "result", Status: st}); err != nil {
			return
		}
	}

	client := hub.NewClient(s.ctx, s.results, c, subject)
	if client == nil {
		return
	}
	client.Run(s.ctx)
}

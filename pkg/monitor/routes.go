package monitor

import (
	"errors"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/teslashibe/go-fatigue/pkg/facepose"
	"github.com/teslashibe/go-fatigue/pkg/landmarks"
	"github.com/teslashibe/go-fatigue/pkg/protocol"
)

// RegisterRoutes registers WebSocket routes on a Fiber app
func (h *Hub) RegisterRoutes(app *fiber.App) {
	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// Detector clients connect here, with or without a subject id
	app.Get("/ws/subject", websocket.New(h.handleSubject))
	app.Get("/ws/subject/:id", websocket.New(h.handleSubject))
}

// RegisterAPIRoutes registers REST routes for sessions and frame ingest
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	subjects := api.Group("/subjects")

	// List open sessions
	subjects.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"subjects": h.Sessions(),
			"count":    h.SessionCount(),
		})
	})

	subjects.Get("/:id", func(c *fiber.Ctx) error {
		info, err := h.Session(c.Params("id"))
		if err != nil {
			return apiError(c, err)
		}
		return c.JSON(info)
	})

	// Open a session explicitly
	subjects.Post("/:id", func(c *fiber.Ctx) error {
		info, err := h.Open(c.Params("id"))
		if err != nil {
			return apiError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(info)
	})

	// Classify one precomputed frame
	subjects.Post("/:id/frames", func(c *fiber.Ctx) error {
		var d protocol.MeasurementData
		if err := c.BodyParser(&d); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		ev, err := h.process(c.UserContext(), c.Params("id"), d.Measurement(), d.FrameID)
		if err != nil {
			return apiError(c, err)
		}
		return c.JSON(resultData(ev))
	})

	// Classify one frame from raw contours
	subjects.Post("/:id/landmarks", func(c *fiber.Ctx) error {
		var d protocol.LandmarksData
		if err := c.BodyParser(&d); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		m, err := d.Measurement()
		if err != nil {
			return apiError(c, err)
		}
		ev, err := h.process(c.UserContext(), c.Params("id"), m, d.FrameID)
		if err != nil {
			return apiError(c, err)
		}
		return c.JSON(resultData(ev))
	})

	// Classify one camera frame, estimating head pose server side
	subjects.Post("/:id/image", func(c *fiber.Ctx) error {
		var d protocol.FrameData
		if err := c.BodyParser(&d); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		img, err := d.DecodeFrameData()
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		m := protocol.MeasurementData{
			EAR:              d.EAR,
			MAR:              d.MAR,
			LeftEyeOpenProb:  d.LeftEyeOpenProb,
			RightEyeOpenProb: d.RightEyeOpenProb,
		}.Measurement()
		ev, err := h.processImage(c.UserContext(), c.Params("id"), img, m, d.FrameID)
		if err != nil {
			return apiError(c, err)
		}
		return c.JSON(resultData(ev))
	})

	subjects.Post("/:id/reset", func(c *fiber.Ctx) error {
		if err := h.Reset(c.Params("id")); err != nil {
			return apiError(c, err)
		}
		return c.JSON(fiber.Map{"status": "reset"})
	})

	subjects.Delete("/:id", func(c *fiber.Ctx) error {
		if err := h.Close(c.Params("id")); err != nil {
			return apiError(c, err)
		}
		return c.JSON(fiber.Map{"status": "closed"})
	})

	// Get hub stats
	api.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(h.Stats())
	})

	// Thresholds in effect for new sessions
	api.Get("/config", func(c *fiber.Ctx) error {
		return c.JSON(h.Config())
	})
}

func resultData(ev Event) protocol.ResultData {
	return protocol.ResultData{
		DetectionResult: ev.Result,
		SubjectID:       ev.SubjectID,
		Frame:           ev.Frame,
		FrameID:         ev.FrameID,
	}
}

// apiError writes err with the status matching its kind
func apiError(c *fiber.Ctx, err error) error {
	return c.Status(errorStatus(err)).JSON(fiber.Map{
		"error": err.Error(),
		"code":  errorCode(err),
	})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrInvalidSubject), errors.Is(err, landmarks.ErrInvalidInput):
		return fiber.StatusBadRequest
	case errors.Is(err, facepose.ErrNoFace):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, ErrNoPoseEstimator):
		return fiber.StatusNotImplemented
	case errors.Is(err, ErrHubClosed):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

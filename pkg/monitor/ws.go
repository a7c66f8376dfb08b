package monitor

import (
	"errors"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"github.com/teslashibe/go-fatigue/pkg/facepose"
	"github.com/teslashibe/go-fatigue/pkg/landmarks"
	"github.com/teslashibe/go-fatigue/pkg/protocol"
)

// subjectConn is one WebSocket connection of a subject's detector client
type subjectConn struct {
	subjectID string
	conn      *websocket.Conn
	mu        sync.Mutex // Serializes writes
}

func (c *subjectConn) send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// handleSubject serves one detector client. The session is closed when
// its last connection goes away.
func (h *Hub) handleSubject(c *websocket.Conn) {
	subjectID := c.Params("id")
	if subjectID == "" {
		subjectID = uuid.NewString()
	}
	logger := h.log.With("subject", subjectID)

	s, err := h.openSession(subjectID)
	if err != nil {
		logger.Warn("rejecting connection", "error", err)
		reply, _ := protocol.NewErrorMessage(protocol.ErrCodeSessionEnded, err.Error())
		_ = (&subjectConn{conn: c}).send(reply)
		return
	}
	s.attach(h.now())
	sc := &subjectConn{subjectID: subjectID, conn: c}
	logger.Info("subject connected", "session", s.id)

	defer func() {
		if s.detach() == 0 {
			_ = h.Close(subjectID)
		}
		logger.Info("subject disconnected")
	}()

	info := s.info(false)
	hello, _ := protocol.NewSessionMessage(protocol.SessionData{
		SessionID: info.SessionID,
		SubjectID: info.SubjectID,
		StartedAt: info.StartedAt,
	})
	if err := h.sendTo(sc, hello); err != nil {
		return
	}

	for {
		mt, data, err := c.ReadMessage()
		if err != nil {
			logger.Debug("read loop ended", "error", err)
			return
		}
		h.messagesReceived.Add(1)

		var reply *protocol.Message
		switch mt {
		case websocket.BinaryMessage:
			reply = h.handleBinary(subjectID, data)
		case websocket.TextMessage:
			reply = h.handleMessage(subjectID, data)
		default:
			continue
		}
		if reply == nil {
			continue
		}
		if err := h.sendTo(sc, reply); err != nil {
			logger.Debug("write failed", "error", err)
			return
		}
	}
}

func (h *Hub) sendTo(c *subjectConn, msg *protocol.Message) error {
	if msg == nil {
		return nil
	}
	h.messagesSent.Add(1)
	return c.send(msg)
}

// handleBinary processes a msgpack measurement frame
func (h *Hub) handleBinary(subjectID string, data []byte) *protocol.Message {
	d, err := protocol.DecodeMeasurement(data)
	if err != nil {
		return h.reject(protocol.ErrCodeBadMessage, err)
	}
	ev, err := h.process(h.ctx, subjectID, d.Measurement(), d.FrameID)
	return h.resultOrError(ev, err)
}

// handleMessage processes a JSON message and returns the reply, if any
func (h *Hub) handleMessage(subjectID string, data []byte) *protocol.Message {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		return h.reject(protocol.ErrCodeBadMessage, err)
	}

	switch msg.Type {
	case protocol.TypeMeasurement:
		d, err := msg.GetMeasurementData()
		if err != nil {
			return h.reject(protocol.ErrCodeBadMessage, err)
		}
		ev, err := h.process(h.ctx, subjectID, d.Measurement(), d.FrameID)
		return h.resultOrError(ev, err)

	case protocol.TypeLandmarks:
		d, err := msg.GetLandmarksData()
		if err != nil {
			return h.reject(protocol.ErrCodeBadMessage, err)
		}
		m, err := d.Measurement()
		if err != nil {
			return h.reject(protocol.ErrCodeBadInput, err)
		}
		ev, err := h.process(h.ctx, subjectID, m, d.FrameID)
		return h.resultOrError(ev, err)

	case protocol.TypeFrame:
		d, err := msg.GetFrameData()
		if err != nil {
			return h.reject(protocol.ErrCodeBadMessage, err)
		}
		img, err := d.DecodeFrameData()
		if err != nil {
			return h.reject(protocol.ErrCodeBadMessage, err)
		}
		m := protocol.MeasurementData{
			EAR:              d.EAR,
			MAR:              d.MAR,
			LeftEyeOpenProb:  d.LeftEyeOpenProb,
			RightEyeOpenProb: d.RightEyeOpenProb,
		}.Measurement()
		ev, err := h.processImage(h.ctx, subjectID, img, m, d.FrameID)
		return h.resultOrError(ev, err)

	case protocol.TypeReset:
		if err := h.Reset(subjectID); err != nil {
			return h.reject(protocol.ErrCodeSessionEnded, err)
		}
		info, err := h.Session(subjectID)
		if err != nil {
			return h.reject(protocol.ErrCodeSessionEnded, err)
		}
		reply, _ := protocol.NewSessionMessage(protocol.SessionData{
			SessionID: info.SessionID,
			SubjectID: info.SubjectID,
			StartedAt: info.StartedAt,
		})
		return reply

	case protocol.TypePing:
		ping, _ := msg.GetPingData()
		id, ts := "", msg.Timestamp
		if ping != nil {
			id = ping.ID
			if ping.Timestamp != 0 {
				ts = ping.Timestamp
			}
		}
		reply, _ := protocol.NewPongMessage(id, ts, time.Now().UnixMilli())
		return reply
	}

	return h.reject(protocol.ErrCodeUnsupported, errors.New("unsupported message type "+string(msg.Type)))
}

func (h *Hub) resultOrError(ev Event, err error) *protocol.Message {
	if err != nil {
		return h.reject(errorCode(err), err)
	}
	reply, err := protocol.NewResultMessage(ev.SubjectID, ev.Frame, ev.FrameID, ev.Result)
	if err != nil {
		return h.reject(protocol.ErrCodeBadMessage, err)
	}
	return reply
}

func (h *Hub) reject(code string, err error) *protocol.Message {
	h.rejected.Add(1)
	reply, _ := protocol.NewErrorMessage(code, err.Error())
	return reply
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, landmarks.ErrInvalidInput):
		return protocol.ErrCodeBadInput
	case errors.Is(err, ErrNoPoseEstimator):
		return protocol.ErrCodeUnsupported
	case errors.Is(err, facepose.ErrNoFace):
		return protocol.ErrCodeNoPose
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrHubClosed):
		return protocol.ErrCodeSessionEnded
	}
	return protocol.ErrCodeBadMessage
}

// Package wsgateway implements the WebSocket Gateway (spec.md §4.8): a
// single duplex endpoint per client session multiplexing command, query,
// and event-stream handling, fronted by github.com/gorilla/websocket.
package wsgateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/placescout/scoutengine/internal/domain"
	"github.com/placescout/scoutengine/internal/dto"
	"github.com/placescout/scoutengine/internal/eventbus"
	"go.uber.org/zap"
)

// CampaignController is the subset of campaignsvc.Service the gateway
// drives commands and queries against. The gateway operates on
// already-created campaigns only; creation itself is an HTTP API
// concern (spec.md §6's POST /api/campaigns).
type CampaignController interface {
	Start(ctx context.Context, id domain.ID) error
	Cancel(id domain.ID)
	Get(ctx context.Context, id domain.ID) (domain.Campaign, error)
	TasksOf(ctx context.Context, id domain.ID) ([]domain.PlaceExtractionTask, error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Gateway owns the HTTP upgrade handler and the live session set.
type Gateway struct {
	log        *zap.Logger
	bus        *eventbus.Bus
	campaigns  CampaignController

	mu       sync.Mutex
	sessions map[string]*session
}

// New constructs a Gateway.
func New(log *zap.Logger, bus *eventbus.Bus, campaigns CampaignController) *Gateway {
	return &Gateway{
		log:       log,
		bus:       bus,
		campaigns: campaigns,
		sessions:  make(map[string]*session),
	}
}

// ServeHTTP upgrades the request to a WebSocket and runs the session's
// read loop until the connection closes.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sessID := uuid.NewString()
	sess := newSession(sessID, conn, g.log.With(zap.String("session_id", sessID)), g)

	g.mu.Lock()
	g.sessions[sessID] = sess
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		delete(g.sessions, sessID)
		g.mu.Unlock()
		sess.Close()
	}()

	go sess.writeLoop()
	g.readLoop(sess)
}

func (g *Gateway) readLoop(sess *session) {
	for {
		_, raw, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			sess.send(Envelope{Type: TypeError, Data: mustJSON(ErrorData{Message: "malformed envelope"})}, "")
			continue
		}
		g.dispatch(sess, env)
	}
}

func (g *Gateway) dispatch(sess *session, env Envelope) {
	switch env.Type {
	case TypeCommand:
		sess.cmdMu.Lock()
		g.handleCommand(sess, env)
		sess.cmdMu.Unlock()
	case TypeQuery:
		g.handleQuery(sess, env)
	case TypeSubscribe:
		g.handleSubscribe(sess, env)
	case TypeAutoStart:
		sess.cmdMu.Lock()
		g.handleAutoStart(sess, env)
		sess.cmdMu.Unlock()
	default:
		sess.send(Envelope{Type: TypeError, Data: mustJSON(ErrorData{Message: "unrecognized message type: " + string(env.Type)})}, "")
	}
}

func (g *Gateway) handleCommand(sess *session, env Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch CommandName(env.Name) {
	case CommandStartExtraction:
		var data StartExtractionData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			g.commandFailure(sess, "malformed start_extraction payload")
			return
		}
		id, err := domain.ParseID(data.CampaignID)
		if err != nil {
			g.commandFailure(sess, "invalid campaign_id")
			return
		}
		if err := g.campaigns.Start(ctx, id); err != nil {
			g.commandFailure(sess, err.Error())
			return
		}
		sess.campaignID = id
		g.commandSuccess(sess, map[string]interface{}{"campaign_id": string(id)})

	case CommandPauseExtraction, CommandCancelExtraction:
		var data CampaignIDData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			g.commandFailure(sess, "malformed payload")
			return
		}
		id, err := domain.ParseID(data.ResolveCampaignID())
		if err != nil {
			g.commandFailure(sess, "invalid campaign_id")
			return
		}
		g.campaigns.Cancel(id)
		g.commandSuccess(sess, map[string]interface{}{"campaign_id": string(id)})

	default:
		g.commandFailure(sess, "unrecognized command: "+env.Name)
	}
}

func (g *Gateway) commandSuccess(sess *session, result interface{}) {
	sess.send(Envelope{Type: TypeCommandResult, Data: mustJSON(CommandResult{Success: true, Result: result})}, "")
}

func (g *Gateway) commandFailure(sess *session, msg string) {
	sess.send(Envelope{Type: TypeCommandResult, Data: mustJSON(CommandResult{Success: false, Error: msg})}, "")
}

func (g *Gateway) handleQuery(sess *session, env Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch QueryName(env.Name) {
	case QueryGetStatus:
		var data CampaignIDData
		_ = json.Unmarshal(env.Data, &data)
		id, err := domain.ParseID(data.ResolveCampaignID())
		if err != nil {
			g.queryFailure(sess, "invalid campaign_id")
			return
		}
		c, err := g.campaigns.Get(ctx, id)
		if err != nil {
			g.queryFailure(sess, err.Error())
			return
		}
		g.querySuccess(sess, dto.CampaignToWire(c))

	case QueryGetStatistics:
		var data CampaignIDData
		_ = json.Unmarshal(env.Data, &data)
		id, err := domain.ParseID(data.ResolveCampaignID())
		if err != nil {
			g.queryFailure(sess, "invalid campaign_id")
			return
		}
		tasks, err := g.campaigns.TasksOf(ctx, id)
		if err != nil {
			g.queryFailure(sess, err.Error())
			return
		}
		g.querySuccess(sess, summarizeTasks(tasks))

	case QueryGetBotInfo:
		g.querySuccess(sess, map[string]interface{}{"note": "bot-level detail is carried via bot_snapshot/bot_status events"})

	default:
		g.queryFailure(sess, "unrecognized query: "+env.Name)
	}
}

func summarizeTasks(tasks []domain.PlaceExtractionTask) map[string]interface{} {
	counts := map[domain.TaskStatus]int{}
	for _, t := range tasks {
		counts[t.Status]++
	}
	return map[string]interface{}{
		"total":       len(tasks),
		"pending":     counts[domain.TaskPending],
		"in_progress": counts[domain.TaskInProgress],
		"completed":   counts[domain.TaskCompleted],
		"failed":      counts[domain.TaskFailed],
		"skipped":     counts[domain.TaskSkipped],
	}
}

func (g *Gateway) querySuccess(sess *session, result interface{}) {
	sess.send(Envelope{Type: TypeQueryResult, Data: mustJSON(QueryResult{Success: true, Result: result})}, "")
}

func (g *Gateway) queryFailure(sess *session, msg string) {
	sess.send(Envelope{Type: TypeQueryResult, Data: mustJSON(QueryResult{Success: false, Error: msg})}, "")
}

func (g *Gateway) handleSubscribe(sess *session, env Envelope) {
	var data SubscribeData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		sess.send(Envelope{Type: TypeError, Data: mustJSON(ErrorData{Message: "malformed subscribe payload"})}, "")
		return
	}
	id, err := domain.ParseID(data.CampaignID)
	if err != nil {
		sess.send(Envelope{Type: TypeError, Data: mustJSON(ErrorData{Message: "invalid campaign_id"})}, "")
		return
	}
	g.bindSubscription(sess, id)
	sess.send(Envelope{Type: TypeStreamStarted, Data: mustJSON(map[string]string{"campaign_id": string(id)})}, "")
}

// bindSubscription replaces any prior subscription with one scoped to
// campaignID, forwarding only events whose CampaignID matches.
func (g *Gateway) bindSubscription(sess *session, campaignID domain.ID) {
	if sess.unsub != nil {
		sess.unsub()
	}
	sess.campaignID = campaignID

	forward := func(kinds ...eventbus.Kind) eventbus.Unsubscribe {
		var unsubs []eventbus.Unsubscribe
		for _, k := range kinds {
			k := k
			unsubs = append(unsubs, g.bus.Subscribe(k, func(ev eventbus.Event) {
				if ev.CampaignID != string(campaignID) {
					return
				}
				g.forwardEvent(sess, ev)
			}))
		}
		return func() {
			for _, u := range unsubs {
				u()
			}
		}
	}

	sess.unsub = forward(
		eventbus.KindTaskStarted,
		eventbus.KindTaskCompleted,
		eventbus.KindTaskFailed,
		eventbus.KindPlaceExtracted,
		eventbus.KindBotSnapshotCaptured,
		eventbus.KindBotError,
		eventbus.KindBotInitialized,
		eventbus.KindBotClosed,
	)
}

// forwardEvent maps one bus event to a wire envelope via the DTO mappers
// and enqueues it on the session, per spec.md §4.8.
func (g *Gateway) forwardEvent(sess *session, ev eventbus.Event) {
	switch ev.Kind {
	case eventbus.KindTaskStarted:
		p := ev.Payload.(eventbus.TaskStartedPayload)
		sess.send(Envelope{Type: TypeBotStatus, Data: mustJSON(BotStatusData{Event: "task_started", Task: dto.TaskToWire(p.Task)})}, ev.Kind)

	case eventbus.KindTaskCompleted:
		p := ev.Payload.(eventbus.TaskCompletedPayload)
		sess.send(Envelope{Type: TypeBotStatus, Data: mustJSON(BotStatusData{Event: "task_completed", Task: dto.TaskToWire(p.Task)})}, ev.Kind)

	case eventbus.KindTaskFailed:
		p := ev.Payload.(eventbus.TaskFailedPayload)
		sess.send(Envelope{Type: TypeBotStatus, Data: mustJSON(BotStatusData{Event: "task_failed", Task: dto.TaskToWire(p.Task)})}, ev.Kind)

	case eventbus.KindPlaceExtracted:
		p := ev.Payload.(eventbus.PlaceExtractedPayload)
		sess.send(Envelope{Type: TypeBotStatus, Data: mustJSON(BotStatusData{Event: "place_extracted", Place: dto.PlaceToWire(p.Place)})}, ev.Kind)

	case eventbus.KindBotSnapshotCaptured:
		p := ev.Payload.(eventbus.BotSnapshotCapturedPayload)
		sess.send(Envelope{Type: TypeBotSnapshot, Data: mustJSON(BotSnapshotData{
			BotIndex:   p.BotIndex,
			TaskID:     string(p.TaskID),
			Screenshot: dto.EncodeImage(p.ImagePNG),
			CurrentURL: p.CurrentURL,
		})}, ev.Kind)

	case eventbus.KindBotError:
		p := ev.Payload.(eventbus.BotErrorPayload)
		sess.send(Envelope{Type: TypeBotError, Data: mustJSON(BotErrorData{
			BotIndex: p.BotIndex,
			TaskID:   string(p.TaskID),
			Message:  p.Message,
		})}, ev.Kind)

	case eventbus.KindBotInitialized, eventbus.KindBotClosed:
		// Pool lifecycle events are diagnostic only; not part of the
		// documented client protocol surface.
	}
}

// handleAutoStart implements the legacy auto_start convenience: subscribe
// and start_extraction in one message, per spec.md §4.8.
func (g *Gateway) handleAutoStart(sess *session, env Envelope) {
	var data StartExtractionData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		g.commandFailure(sess, "malformed auto_start payload")
		return
	}
	id, err := domain.ParseID(data.CampaignID)
	if err != nil {
		g.commandFailure(sess, "invalid campaign_id")
		return
	}
	g.bindSubscription(sess, id)
	sess.send(Envelope{Type: TypeStreamStarted, Data: mustJSON(map[string]string{"campaign_id": string(id)})}, "")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := g.campaigns.Start(ctx, id); err != nil {
		g.commandFailure(sess, err.Error())
		return
	}
	g.commandSuccess(sess, map[string]interface{}{"campaign_id": string(id)})
}

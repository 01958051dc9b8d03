package wsgateway

import "encoding/json"

// MessageType is the type discriminator of every envelope exchanged over
// the duplex endpoint, per spec.md §4.8.
type MessageType string

const (
	TypeCommand       MessageType = "command"
	TypeQuery         MessageType = "query"
	TypeSubscribe     MessageType = "subscribe"
	TypeAutoStart     MessageType = "auto_start"
	TypeCommandResult MessageType = "command_result"
	TypeQueryResult   MessageType = "query_result"
	TypeStreamStarted MessageType = "stream_started"
	TypeBotStatus     MessageType = "bot_status"
	TypeBotSnapshot   MessageType = "bot_snapshot"
	TypeBotError      MessageType = "bot_error"
	TypeError         MessageType = "error"
)

// Envelope is the outer shape of every message. Data is deferred decoding:
// each command/query name has its own payload shape.
type Envelope struct {
	Type MessageType     `json:"type"`
	Name string          `json:"name,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// CommandName enumerates the mutating operations the command handler
// recognizes.
type CommandName string

const (
	CommandStartExtraction  CommandName = "start_extraction"
	CommandPauseExtraction  CommandName = "pause_extraction"
	CommandCancelExtraction CommandName = "cancel_extraction"
)

// QueryName enumerates the read-only operations the query handler
// recognizes.
type QueryName string

const (
	QueryGetStatus     QueryName = "get_status"
	QueryGetStatistics QueryName = "get_statistics"
	QueryGetBotInfo    QueryName = "get_bot_info"
)

// StartExtractionData is the start_extraction command payload. Per
// spec.md §9's open question, an implementation must accept both the
// documented and the client-used key for the bot count; NumBots is
// canonical, ExtractionBots and Spec.NumBots are accepted aliases.
type StartExtractionData struct {
	CampaignID     string      `json:"campaign_id"`
	NumBots        *int        `json:"num_bots,omitempty"`
	ExtractionBots *int        `json:"extraction_bots,omitempty"`
	Spec           *specAlias  `json:"spec,omitempty"`
}

type specAlias struct {
	NumBots *int `json:"num_bots,omitempty"`
}

// ResolveNumBots returns the canonical bot count from whichever alias was
// set, or 0 if none were.
func (d StartExtractionData) ResolveNumBots() int {
	if d.NumBots != nil {
		return *d.NumBots
	}
	if d.ExtractionBots != nil {
		return *d.ExtractionBots
	}
	if d.Spec != nil && d.Spec.NumBots != nil {
		return *d.Spec.NumBots
	}
	return 0
}

// CampaignIDData is the shared payload shape for pause/cancel commands and
// the get_status/get_statistics queries.
type CampaignIDData struct {
	CampaignID string `json:"campaign_id"`
	ID         string `json:"id"`
}

// ResolveCampaignID accepts both documented key names.
func (d CampaignIDData) ResolveCampaignID() string {
	if d.CampaignID != "" {
		return d.CampaignID
	}
	return d.ID
}

// SubscribeData is the subscribe message payload: bind the session's event
// forwarding to one campaign.
type SubscribeData struct {
	CampaignID string `json:"campaign_id"`
}

// CommandResult is the command_result envelope data.
type CommandResult struct {
	Success bool        `json:"success"`
	Result  interface{} `json:"result,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// QueryResult is the query_result envelope data.
type QueryResult struct {
	Success bool        `json:"success"`
	Result  interface{} `json:"result,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// BotStatusData carries campaign-scoped lifecycle events (TaskStarted,
// PlaceExtracted, TaskCompleted, TaskFailed) to the client.
type BotStatusData struct {
	Event string      `json:"event"`
	Task  interface{} `json:"task,omitempty"`
	Place interface{} `json:"place,omitempty"`
}

// BotSnapshotData carries a BotSnapshotCaptured event, base64-encoded per
// spec.md §4.8.
type BotSnapshotData struct {
	BotIndex   int    `json:"bot_index"`
	TaskID     string `json:"task_id"`
	Screenshot string `json:"screenshot"`
	CurrentURL string `json:"current_url"`
}

// BotErrorData carries a BotError event.
type BotErrorData struct {
	BotIndex int    `json:"bot_index"`
	TaskID   string `json:"task_id"`
	Message  string `json:"message"`
}

// ErrorData is the error envelope data.
type ErrorData struct {
	Message string `json:"message"`
}

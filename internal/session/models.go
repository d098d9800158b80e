package session

import "encoding/json"

// SessionURL is one candidate delivery endpoint.
type SessionURL struct {
	URL             string `json:"url"`
	IsWellKnownPort bool   `json:"isWellKnownPort"`
	IsSSL           bool   `json:"isSsl"`
}

// DeliverySession is the server-issued session descriptor found in the
// watch page metadata. It is the input to Negotiate.
type DeliverySession struct {
	RecipeID      string            `json:"recipeId"`
	PlayerID      string            `json:"playerId"`
	Videos        []string          `json:"videos"`
	Audios        []string          `json:"audios"`
	Movies        []string          `json:"movies"`
	Protocols     []string          `json:"protocols"`
	AuthTypes     map[string]string `json:"authTypes"`
	ServiceUserID string            `json:"serviceUserId"`
	Token         string            `json:"token"`
	Signature     string            `json:"signature"`
	ContentID     string            `json:"contentId"`
	// HeartbeatLifetime is how long, in seconds, the server keeps the
	// session without a heartbeat.
	HeartbeatLifetime int          `json:"heartbeatLifetime"`
	ContentKeyTimeout int          `json:"contentKeyTimeout"`
	Priority          float64      `json:"priority"`
	TransferPresets   []string     `json:"transferPresets"`
	URLs              []SessionURL `json:"urls"`
}

// Wire format of the session creation request. Key names follow the
// delivery service's schema exactly.
type createRequest struct {
	Session sessionRequest `json:"session"`
}

type sessionRequest struct {
	RecipeID             string               `json:"recipe_id"`
	ContentID            string               `json:"content_id"`
	ContentType          string               `json:"content_type"`
	ContentSrcIDSets     []contentSrcIDSet    `json:"content_src_id_sets"`
	TimingConstraint     string               `json:"timing_constraint"`
	KeepMethod           keepMethod           `json:"keep_method"`
	Protocol             protocol             `json:"protocol"`
	ContentURI           string               `json:"content_uri"`
	SessionOperationAuth sessionOperationAuth `json:"session_operation_auth"`
	ContentAuth          contentAuth          `json:"content_auth"`
	ClientInfo           clientInfo           `json:"client_info"`
	Priority             float64              `json:"priority"`
}

type contentSrcIDSet struct {
	ContentSrcIDs []contentSrcID `json:"content_src_ids"`
}

type contentSrcID struct {
	SrcIDToMux srcIDToMux `json:"src_id_to_mux"`
}

type srcIDToMux struct {
	VideoSrcIDs []string `json:"video_src_ids"`
	AudioSrcIDs []string `json:"audio_src_ids"`
}

type keepMethod struct {
	Heartbeat heartbeatMethod `json:"heartbeat"`
}

type heartbeatMethod struct {
	Lifetime int `json:"lifetime"`
}

type protocol struct {
	Name       string             `json:"name"`
	Parameters protocolParameters `json:"parameters"`
}

type protocolParameters struct {
	HTTPParameters httpParameters `json:"http_parameters"`
}

type httpParameters struct {
	Parameters httpInnerParameters `json:"parameters"`
}

type httpInnerParameters struct {
	HLSParameters hlsParameters `json:"hls_parameters"`
}

type hlsParameters struct {
	UseWellKnownPort string `json:"use_well_known_port"`
	UseSSL           string `json:"use_ssl"`
	TransferPreset   string `json:"transfer_preset"`
	SegmentDuration  int    `json:"segment_duration"`
}

type sessionOperationAuth struct {
	BySignature signatureAuth `json:"session_operation_auth_by_signature"`
}

type signatureAuth struct {
	Token     string `json:"token"`
	Signature string `json:"signature"`
}

type contentAuth struct {
	AuthType          string `json:"auth_type"`
	ContentKeyTimeout int    `json:"content_key_timeout"`
	ServiceID         string `json:"service_id"`
	ServiceUserID     string `json:"service_user_id"`
}

type clientInfo struct {
	PlayerID string `json:"player_id"`
}

// envelope is the response to both session creation and heartbeats. The
// session object is kept raw so it can be sent back unchanged.
type envelope struct {
	Meta struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"meta"`
	Data struct {
		Session json.RawMessage `json:"session"`
	} `json:"data"`
}

type sessionInfo struct {
	ID         string `json:"id"`
	ContentURI string `json:"content_uri"`
}

type heartbeatRequest struct {
	Session json.RawMessage `json:"session"`
}

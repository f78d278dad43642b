// Package protocol implements the binary request/response envelope spoken
// between a client, the arbiter, and an engine subprocess.
//
// The real engine wire format is an opaque, externally-defined protobuf
// schema; this package only ever decodes the handful of fields the arbiter
// needs to classify and, rarely, rewrite a message (see ParseRequest,
// ParseResponse and RewriteGameInfoRaceObfuscation). Every other field is left untouched in the raw bytes
// and forwarded verbatim.
package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/sc2arena/matcharbiter/internal/sc2"
)

// RequestKind classifies a Request without decoding its full payload.
type RequestKind uint8

const (
	ReqOther RequestKind = iota
	ReqQuit
	ReqPing
	ReqDebug
	ReqLeaveGame
	ReqJoinGame
	ReqAction
)

// ResponseKind classifies a Response without decoding its full payload.
type ResponseKind uint8

const (
	RespOther ResponseKind = iota
	RespQuit
	RespPing
	RespJoinGame
	RespCreateGame
	RespObservation
	RespGameInfo
	RespSaveReplay
)

// Status mirrors the engine's coarse game-state status field.
type Status uint8

const (
	StatusUnknown Status = iota
	StatusLaunched
	StatusInitGame
	StatusInGame
	StatusInReplay
	StatusEnded
	StatusQuit
)

var (
	ErrShortBuffer   = fmt.Errorf("protocol: buffer too small")
	ErrUnknownKind   = fmt.Errorf("protocol: unknown kind byte")
	ErrTruncatedBody = fmt.Errorf("protocol: truncated payload")
)

const headerLen = 1 + 4 + 4 // kind + id + payload length

// header is the fixed envelope prefix shared by every request and response.
func putHeader(buf []byte, kind uint8, id uint32, payloadLen uint32) {
	buf[0] = kind
	binary.BigEndian.PutUint32(buf[1:5], id)
	binary.BigEndian.PutUint32(buf[5:9], payloadLen)
}

func readHeader(raw []byte) (kind uint8, id uint32, payload []byte, err error) {
	if len(raw) < headerLen {
		return 0, 0, nil, ErrShortBuffer
	}
	kind = raw[0]
	id = binary.BigEndian.Uint32(raw[1:5])
	n := binary.BigEndian.Uint32(raw[5:9])
	if uint32(len(raw)-headerLen) < n {
		return 0, 0, nil, ErrTruncatedBody
	}
	payload = raw[headerLen : headerLen+int(n)]
	return kind, id, payload, nil
}

func putString(buf []byte, offset int, s string) int {
	binary.BigEndian.PutUint16(buf[offset:offset+2], uint16(len(s)))
	copy(buf[offset+2:], s)
	return offset + 2 + len(s)
}

func readString(payload []byte, offset int) (string, int, error) {
	if len(payload) < offset+2 {
		return "", 0, ErrTruncatedBody
	}
	n := int(binary.BigEndian.Uint16(payload[offset : offset+2]))
	offset += 2
	if len(payload) < offset+n {
		return "", 0, ErrTruncatedBody
	}
	return string(payload[offset : offset+n]), offset + n, nil
}

// InterfaceOptions mirrors the engine's InterfaceOptions subset the arbiter
// cares about: whether raw data is requested, whether it affects unit
// selection (forced off in Archon mode), and whether score is requested.
type InterfaceOptions struct {
	Raw                  bool
	Score                bool
	RawAffectsSelection  bool
	ShowCloaked          bool
}

func (o InterfaceOptions) encode() byte {
	var b byte
	if o.Raw {
		b |= 1 << 0
	}
	if o.Score {
		b |= 1 << 1
	}
	if o.RawAffectsSelection {
		b |= 1 << 2
	}
	if o.ShowCloaked {
		b |= 1 << 3
	}
	return b
}

func decodeInterfaceOptions(b byte) InterfaceOptions {
	return InterfaceOptions{
		Raw:                 b&(1<<0) != 0,
		Score:               b&(1<<1) != 0,
		RawAffectsSelection: b&(1<<2) != 0,
		ShowCloaked:         b&(1<<3) != 0,
	}
}

// JoinGameRequest is the minimal decode of a client's join_game request.
type JoinGameRequest struct {
	Race          sc2.Race
	PlayerName    string
	HasPlayerName bool
	Options       InterfaceOptions
}

// Request is a shallow decode of one client->arbiter->engine message.
type Request struct {
	ID       uint32
	Kind     RequestKind
	JoinGame *JoinGameRequest
	Chat     []string // chat message bodies, only populated for ReqAction
}

// ParseRequest classifies raw and decodes only the fields needed for that
// classification. Any payload bytes beyond what a given Kind requires are
// never inspected.
func ParseRequest(raw []byte) (Request, error) {
	kind, id, payload, err := readHeader(raw)
	if err != nil {
		return Request{}, err
	}
	req := Request{ID: id}
	switch RequestKind(kind) {
	case ReqQuit:
		req.Kind = ReqQuit
	case ReqPing:
		req.Kind = ReqPing
	case ReqDebug:
		req.Kind = ReqDebug
	case ReqLeaveGame:
		req.Kind = ReqLeaveGame
	case ReqJoinGame:
		req.Kind = ReqJoinGame
		jg, err := decodeJoinGameRequest(payload)
		if err != nil {
			return Request{}, err
		}
		req.JoinGame = &jg
	case ReqAction:
		req.Kind = ReqAction
		chat, err := decodeChat(payload)
		if err != nil {
			return Request{}, err
		}
		req.Chat = chat
	default:
		req.Kind = ReqOther
	}
	return req, nil
}

func decodeJoinGameRequest(payload []byte) (JoinGameRequest, error) {
	if len(payload) < 2 {
		return JoinGameRequest{}, ErrTruncatedBody
	}
	race := sc2.Race(payload[0])
	opts := decodeInterfaceOptions(payload[1])
	jg := JoinGameRequest{Race: race, Options: opts}
	if len(payload) >= 3 && payload[2] == 1 {
		name, _, err := readString(payload, 3)
		if err != nil {
			return JoinGameRequest{}, err
		}
		jg.PlayerName = name
		jg.HasPlayerName = true
	}
	return jg, nil
}

func decodeChat(payload []byte) ([]string, error) {
	if len(payload) < 1 {
		return nil, nil
	}
	count := int(payload[0])
	offset := 1
	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		s, next, err := readString(payload, offset)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
		offset = next
	}
	return out, nil
}

// EncodeJoinGameRequest builds the wire bytes for a join_game request the
// lobby sends to an engine. portConfig is nil for single-player joins.
func EncodeJoinGameRequest(id uint32, race sc2.Race, playerName string, opts InterfaceOptions, pc *PortConfig) []byte {
	nameByte := byte(0)
	if playerName != "" {
		nameByte = 1
	}
	body := make([]byte, 0, 64)
	body = append(body, byte(race), opts.encode(), nameByte)
	if nameByte == 1 {
		strBuf := make([]byte, 2+len(playerName))
		putString(strBuf, 0, playerName)
		body = append(body, strBuf...)
	}
	if pc == nil {
		body = append(body, 0)
	} else {
		body = append(body, 1)
		portBuf := make([]byte, 10)
		binary.BigEndian.PutUint16(portBuf[0:2], pc.Shared)
		binary.BigEndian.PutUint16(portBuf[2:4], pc.ServerGame)
		binary.BigEndian.PutUint16(portBuf[4:6], pc.ServerBase)
		binary.BigEndian.PutUint16(portBuf[6:8], pc.ClientGame)
		binary.BigEndian.PutUint16(portBuf[8:10], pc.ClientBase)
		body = append(body, portBuf...)
	}
	buf := make([]byte, headerLen+len(body))
	putHeader(buf, uint8(ReqJoinGame), id, uint32(len(body)))
	copy(buf[headerLen:], body)
	return buf
}

// PortConfig is the five-port allocation a multiplayer join_game request
// carries. It is defined here, rather than in internal/paths, because its
// shape is dictated entirely by the wire format.
type PortConfig struct {
	Shared     uint16
	ServerGame uint16
	ServerBase uint16
	ClientGame uint16
	ClientBase uint16
}

// PlayerSetup is a participant slot in a create_game request.
type PlayerSetup struct {
	Participant bool // always true in this system: two live bots, no observers
}

// EncodeCreateGameRequest builds the wire bytes for a create_game request,
// carrying one PlayerSetup per enrolled player.
func EncodeCreateGameRequest(id uint32, mapPath string, realtime bool, setups []PlayerSetup) []byte {
	body := make([]byte, 0, 32+len(mapPath)+len(setups))
	mapBuf := make([]byte, 2+len(mapPath))
	putString(mapBuf, 0, mapPath)
	body = append(body, mapBuf...)
	rt := byte(0)
	if realtime {
		rt = 1
	}
	body = append(body, rt, byte(len(setups)))
	for _, s := range setups {
		p := byte(0)
		if s.Participant {
			p = 1
		}
		body = append(body, p)
	}
	buf := make([]byte, headerLen+len(body))
	putHeader(buf, uint8(0 /* create_game is arbiter-originated only, no ReqX needed on decode path */), id, uint32(len(body)))
	// create_game requests are only ever sent by the lobby, never received
	// from a client, so they use a private leading byte rather than a
	// RequestKind the classifier needs to recognize.
	buf[0] = 0xF0
	return buf
}

// EncodeSaveReplayRequest builds the wire bytes for a save_replay request
// the driver sends to its engine at match end.
func EncodeSaveReplayRequest(id uint32) []byte {
	buf := make([]byte, headerLen)
	putHeader(buf, 0xF2, id, 0)
	return buf
}

// EncodeDebugSuppressionResponse builds the synthesized response sent to a
// client instead of forwarding a debug request to the engine.
func EncodeDebugSuppressionResponse(id uint32) []byte {
	buf := make([]byte, headerLen+1)
	putHeader(buf, uint8(RespOther), id, 1)
	buf[headerLen] = byte(StatusInGame)
	return buf
}

// EncodeQuitResponse builds a synthesized ResponseQuit.
func EncodeQuitResponse(id uint32) []byte {
	buf := make([]byte, headerLen)
	putHeader(buf, uint8(RespQuit), id, 0)
	return buf
}

// BuildInfo is the engine version manifest data echoed in a Pong response.
type BuildInfo struct {
	Version     string
	BaseBuild   uint32
	DataBuild   uint32
	DataVersion string
}

// EncodePingResponse builds a synthesized ResponsePing carrying the
// engine's build info, read lazily by the caller from the version manifest.
func EncodePingResponse(id uint32, info BuildInfo) []byte {
	versionBuf := make([]byte, 2+len(info.Version))
	putString(versionBuf, 0, info.Version)
	dataVerBuf := make([]byte, 2+len(info.DataVersion))
	putString(dataVerBuf, 0, info.DataVersion)

	body := make([]byte, 0, len(versionBuf)+len(dataVerBuf)+8)
	body = append(body, versionBuf...)
	buildBuf := make([]byte, 8)
	binary.BigEndian.PutUint32(buildBuf[0:4], info.BaseBuild)
	binary.BigEndian.PutUint32(buildBuf[4:8], info.DataBuild)
	body = append(body, buildBuf...)
	body = append(body, dataVerBuf...)

	buf := make([]byte, headerLen+len(body))
	putHeader(buf, uint8(RespPing), id, uint32(len(body)))
	copy(buf[headerLen:], body)
	return buf
}

// PlayerResultEntry is one (engine player id, outcome) pair from an
// observation response.
type PlayerResultEntry struct {
	PlayerID uint32
	Result   sc2.PlayerResult
}

// ObservationResponse is the minimal decode of an observation response.
type ObservationResponse struct {
	GameLoop uint32
	Results  []PlayerResultEntry // empty unless the game has ended
}

// PlayerInfoEntry is one participant entry in a game_info response.
type PlayerInfoEntry struct {
	PlayerID     uint32
	RaceRequested sc2.Race
	RaceActual    sc2.Race
}

// GameInfoResponse is the minimal decode of a game_info response.
type GameInfoResponse struct {
	PlayerInfo []PlayerInfoEntry
}

// JoinGameResponse is the minimal decode of a join_game response.
type JoinGameResponse struct {
	PlayerID uint32
	HasError bool
	Error    string
}

// CreateGameResponse is the minimal decode of a create_game response.
type CreateGameResponse struct {
	HasError bool
	Error    string
}

// SaveReplayResponse carries the raw replay bytes from a save_replay
// response.
type SaveReplayResponse struct {
	Data []byte
}

// Response is a shallow decode of one engine->arbiter->client message.
// Raw always holds the untouched envelope bytes so the caller can forward
// them verbatim when no rewrite is required.
type Response struct {
	ID          uint32
	Kind        ResponseKind
	Status      Status
	Raw         []byte
	Ping        *BuildInfo
	JoinGame    *JoinGameResponse
	CreateGame  *CreateGameResponse
	Observation *ObservationResponse
	GameInfo    *GameInfoResponse
	SaveReplay  *SaveReplayResponse
}

// ParseResponse classifies raw and decodes only the fields the given kind
// requires; Raw retains the full original bytes.
func ParseResponse(raw []byte) (Response, error) {
	kind, id, payload, err := readHeader(raw)
	if err != nil {
		return Response{}, err
	}
	resp := Response{ID: id, Raw: raw}
	switch ResponseKind(kind) {
	case RespQuit:
		resp.Kind = RespQuit
		resp.Status = StatusQuit
	case RespPing:
		resp.Kind = RespPing
		info, err := decodePingResponse(payload)
		if err != nil {
			return Response{}, err
		}
		resp.Ping = &info
	case RespJoinGame:
		resp.Kind = RespJoinGame
		jg, err := decodeJoinGameResponse(payload)
		if err != nil {
			return Response{}, err
		}
		resp.JoinGame = &jg
	case RespCreateGame:
		resp.Kind = RespCreateGame
		cg, err := decodeCreateGameResponse(payload)
		if err != nil {
			return Response{}, err
		}
		resp.CreateGame = &cg
	case RespObservation:
		resp.Kind = RespObservation
		resp.Status = StatusInGame
		obs, err := decodeObservationResponse(payload)
		if err != nil {
			return Response{}, err
		}
		resp.Observation = &obs
	case RespGameInfo:
		resp.Kind = RespGameInfo
		gi, err := decodeGameInfoResponse(payload)
		if err != nil {
			return Response{}, err
		}
		resp.GameInfo = &gi
	case RespSaveReplay:
		resp.Kind = RespSaveReplay
		resp.SaveReplay = &SaveReplayResponse{Data: append([]byte(nil), payload...)}
	default:
		if len(payload) >= 1 {
			resp.Status = Status(payload[0])
		}
		resp.Kind = RespOther
	}
	return resp, nil
}

func decodePingResponse(payload []byte) (BuildInfo, error) {
	version, offset, err := readString(payload, 0)
	if err != nil {
		return BuildInfo{}, err
	}
	if len(payload) < offset+8 {
		return BuildInfo{}, ErrTruncatedBody
	}
	baseBuild := binary.BigEndian.Uint32(payload[offset : offset+4])
	dataBuild := binary.BigEndian.Uint32(payload[offset+4 : offset+8])
	offset += 8
	dataVersion, _, err := readString(payload, offset)
	if err != nil {
		return BuildInfo{}, err
	}
	return BuildInfo{Version: version, BaseBuild: baseBuild, DataBuild: dataBuild, DataVersion: dataVersion}, nil
}

func decodeJoinGameResponse(payload []byte) (JoinGameResponse, error) {
	if len(payload) < 5 {
		return JoinGameResponse{}, ErrTruncatedBody
	}
	playerID := binary.BigEndian.Uint32(payload[0:4])
	hasErr := payload[4] == 1
	jg := JoinGameResponse{PlayerID: playerID, HasError: hasErr}
	if hasErr {
		errStr, _, err := readString(payload, 5)
		if err != nil {
			return JoinGameResponse{}, err
		}
		jg.Error = errStr
	}
	return jg, nil
}

func decodeCreateGameResponse(payload []byte) (CreateGameResponse, error) {
	if len(payload) < 1 {
		return CreateGameResponse{}, ErrTruncatedBody
	}
	hasErr := payload[0] == 1
	cg := CreateGameResponse{HasError: hasErr}
	if hasErr {
		errStr, _, err := readString(payload, 1)
		if err != nil {
			return CreateGameResponse{}, err
		}
		cg.Error = errStr
	}
	return cg, nil
}

func decodeObservationResponse(payload []byte) (ObservationResponse, error) {
	if len(payload) < 5 {
		return ObservationResponse{}, ErrTruncatedBody
	}
	gameLoop := binary.BigEndian.Uint32(payload[0:4])
	count := int(payload[4])
	offset := 5
	results := make([]PlayerResultEntry, 0, count)
	for i := 0; i < count; i++ {
		if len(payload) < offset+5 {
			return ObservationResponse{}, ErrTruncatedBody
		}
		pid := binary.BigEndian.Uint32(payload[offset : offset+4])
		result := sc2.FromWireResult(payload[offset+4])
		results = append(results, PlayerResultEntry{PlayerID: pid, Result: result})
		offset += 5
	}
	return ObservationResponse{GameLoop: gameLoop, Results: results}, nil
}

func decodeGameInfoResponse(payload []byte) (GameInfoResponse, error) {
	if len(payload) < 1 {
		return GameInfoResponse{}, ErrTruncatedBody
	}
	count := int(payload[0])
	offset := 1
	entries := make([]PlayerInfoEntry, 0, count)
	for i := 0; i < count; i++ {
		if len(payload) < offset+6 {
			return GameInfoResponse{}, ErrTruncatedBody
		}
		pid := binary.BigEndian.Uint32(payload[offset : offset+4])
		reqRace := sc2.Race(payload[offset+4])
		actRace := sc2.Race(payload[offset+5])
		entries = append(entries, PlayerInfoEntry{PlayerID: pid, RaceRequested: reqRace, RaceActual: actRace})
		offset += 6
	}
	return GameInfoResponse{PlayerInfo: entries}, nil
}

// RewriteGameInfoRaceObfuscation rewrites a game_info response so that every
// player_info entry whose id is not selfPlayerID reports race_actual equal
// to race_requested, hiding the opponent's true race. If raw does not
// decode to a game_info response it is returned unchanged: only this one
// rewrite path ever re-encodes a message.
func RewriteGameInfoRaceObfuscation(raw []byte, selfPlayerID uint32) ([]byte, error) {
	kind, id, payload, err := readHeader(raw)
	if err != nil {
		return raw, err
	}
	if ResponseKind(kind) != RespGameInfo {
		return raw, nil
	}
	gi, err := decodeGameInfoResponse(payload)
	if err != nil {
		return raw, err
	}
	for i := range gi.PlayerInfo {
		if gi.PlayerInfo[i].PlayerID != selfPlayerID {
			gi.PlayerInfo[i].RaceActual = gi.PlayerInfo[i].RaceRequested
		}
	}
	body := make([]byte, 1, 1+len(gi.PlayerInfo)*6)
	body[0] = byte(len(gi.PlayerInfo))
	for _, pi := range gi.PlayerInfo {
		entry := make([]byte, 6)
		binary.BigEndian.PutUint32(entry[0:4], pi.PlayerID)
		entry[4] = byte(pi.RaceRequested)
		entry[5] = byte(pi.RaceActual)
		body = append(body, entry...)
	}
	buf := make([]byte, headerLen+len(body))
	putHeader(buf, kind, id, uint32(len(body)))
	copy(buf[headerLen:], body)
	return buf, nil
}

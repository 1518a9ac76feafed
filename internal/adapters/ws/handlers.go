package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/khanhnq1406/lo-to-sub001/internal/game"
)

// dispatch routes one inbound envelope. Every failure goes back to the
// origin as a structured error event; nothing here can take the room or
// the other participants down.
func (ctl *Controller) dispatch(c *conn, data []byte) {
	if !ctl.limiter.Allow(c.id) {
		ctl.sendError(c, "rate_limited", "slow down")
		return
	}
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		ctl.sendError(c, "validation_error", "bad json")
		return
	}

	var err error
	switch env.Type {
	case "ping":
		ctl.deliver(c, "pong", nil)
		return
	case "create_room":
		var p struct {
			Name       string `json:"name"`
			Mode       string `json:"mode"`
			IntervalMS int64  `json:"intervalMs"`
		}
		if err = json.Unmarshal(data, &p); err == nil {
			err = ctl.orch.CreateRoom(c.id, c.token, p.Name, p.Mode, time.Duration(p.IntervalMS)*time.Millisecond)
		}
	case "join_room":
		var p struct {
			Code string `json:"code"`
			Name string `json:"name"`
		}
		if err = json.Unmarshal(data, &p); err == nil {
			err = ctl.orch.Join(c.id, c.token, p.Code, p.Name)
		}
	case "reconnect":
		err = ctl.orch.Reconnect(c.id, c.token)
	case "leave_room":
		err = ctl.orch.Leave(c.id)
	case "start_game":
		err = ctl.orch.StartGame(c.id)
	case "call_number":
		var p struct {
			Number int `json:"number"`
		}
		if err = json.Unmarshal(data, &p); err == nil {
			err = ctl.orch.CallNumber(c.id, p.Number)
		}
	case "claim_win":
		// missing boardIndex means "any of my boards"
		p := struct {
			BoardIndex int `json:"boardIndex"`
		}{BoardIndex: -1}
		if err = json.Unmarshal(data, &p); err == nil {
			err = ctl.orch.ClaimWin(c.id, p.BoardIndex)
		}
	case "select_board":
		var p struct {
			Slot int `json:"slot"`
		}
		if err = json.Unmarshal(data, &p); err == nil {
			err = ctl.orch.SelectBoard(c.id, p.Slot)
		}
	case "deselect_board":
		var p struct {
			Slot int `json:"slot"`
		}
		if err = json.Unmarshal(data, &p); err == nil {
			err = ctl.orch.DeselectBoard(c.id, p.Slot)
		}
	case "change_mode":
		var p struct {
			Mode       string `json:"mode"`
			IntervalMS int64  `json:"intervalMs"`
		}
		if err = json.Unmarshal(data, &p); err == nil {
			err = ctl.orch.ChangeMode(c.id, p.Mode, time.Duration(p.IntervalMS)*time.Millisecond)
		}
	case "change_interval":
		var p struct {
			IntervalMS int64 `json:"intervalMs"`
		}
		if err = json.Unmarshal(data, &p); err == nil {
			err = ctl.orch.ChangeInterval(c.id, time.Duration(p.IntervalMS)*time.Millisecond)
		}
	case "change_caller":
		var p struct {
			TargetID string `json:"targetId"`
		}
		if err = json.Unmarshal(data, &p); err == nil {
			err = ctl.orch.ChangeCaller(c.id, p.TargetID)
		}
	case "change_marking":
		var p struct {
			AutoMark bool `json:"autoMark"`
		}
		if err = json.Unmarshal(data, &p); err == nil {
			err = ctl.orch.SetAutoMark(c.id, p.AutoMark)
		}
	case "kick":
		var p struct {
			TargetID string `json:"targetId"`
		}
		if err = json.Unmarshal(data, &p); err == nil {
			err = ctl.orch.Kick(c.id, p.TargetID)
		}
	case "reset_game":
		err = ctl.orch.Reset(c.id)
	case "rename":
		var p struct {
			Name string `json:"name"`
		}
		if err = json.Unmarshal(data, &p); err == nil {
			err = ctl.orch.Rename(c.id, p.Name)
		}
	default:
		log.Warn().Str("module", "ws").Str("type", env.Type).Msg("unknown command")
		ctl.sendError(c, "validation_error", fmt.Sprintf("unknown command %q", env.Type))
		return
	}

	if err != nil {
		code := game.ErrorCode(err)
		var syn *json.SyntaxError
		var typ *json.UnmarshalTypeError
		if errors.As(err, &syn) || errors.As(err, &typ) {
			code = "validation_error"
		}
		ctl.sendError(c, code, err.Error())
	}
}

// sendError reports a failed command to the originating connection only.
func (ctl *Controller) sendError(c *conn, code, message string) {
	ctl.deliver(c, "error", map[string]any{"code": code, "message": message})
}

// Package simtest provides contract fixtures for exercising the router: a
// counter and a relay that emits scripted sub-messages.
package simtest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	chainerrors "chainsim/core/errors"
	"chainsim/core/types"
	"chainsim/crypto"
	"chainsim/native/sandbox"
)

var (
	countKey    = []byte("count")
	migratedKey = []byte("migrated")
	repliesKey  = []byte("replies")
	observeKey    = []byte("observe")
)

// MustJSON encodes v or panics.
func MustJSON(v any) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}

// CounterInit is the instantiate message of the counter.
type CounterInit struct {
	Count uint64 `json:"count"`
}

// CounterMsg drives the counter. Action is one of "increment", "fail".
type CounterMsg struct {
	Action string `json:"action"`
	Reason string `json:"reason,omitempty"`
	Data   string `json:"data,omitempty"`
}

// CountResponse is the answer to every counter query.
type CountResponse struct {
	Count uint64 `json:"count"`
}

func Increment() []byte { return MustJSON(CounterMsg{Action: "increment"}) }

func Fail(reason string) []byte { return MustJSON(CounterMsg{Action: "fail", Reason: reason}) }

func loadCount(deps sandbox.Deps) (uint64, error) {
	raw, err := deps.Storage.Get(countKey)
	if err != nil || raw == nil {
		return 0, err
	}
	return strconv.ParseUint(string(raw), 10, 64)
}

func storeCount(deps sandbox.Deps, n uint64) error {
	return deps.Storage.Set(countKey, []byte(strconv.FormatUint(n, 10)))
}

// Counter keeps a number. Execute increments it or fails on request; query
// returns it, except for the literal message "write" which attempts a write.
// Sudo resets it and migrate marks the instance as migrated.
func Counter() *sandbox.ContractWrapper {
	return sandbox.NewContractWrapper(
		func(deps sandbox.Deps, _ sandbox.Env, info sandbox.MessageInfo, msg []byte) (*types.Response, error) {
			var m CounterMsg
			if err := json.Unmarshal(msg, &m); err != nil {
				return nil, fmt.Errorf("parse counter msg: %w", err)
			}
			switch m.Action {
			case "increment":
				n, err := loadCount(deps)
				if err != nil {
					return nil, err
				}
				n++
				if err := storeCount(deps, n); err != nil {
					return nil, err
				}
				res := types.NewResponse().
					AddAttribute("action", "increment").
					AddAttribute("count", strconv.FormatUint(n, 10))
				if len(info.Funds) > 0 {
					res.AddAttribute("funds", info.Funds.String())
				}
				if m.Data != "" {
					res.SetData([]byte(m.Data))
				}
				return res, nil
			case "fail":
				return nil, errors.New(m.Reason)
			default:
				return nil, fmt.Errorf("unknown counter action %q", m.Action)
			}
		},
		func(deps sandbox.Deps, _ sandbox.Env, _ sandbox.MessageInfo, msg []byte) (*types.Response, error) {
			var init CounterInit
			if len(msg) > 0 {
				if err := json.Unmarshal(msg, &init); err != nil {
					return nil, fmt.Errorf("parse counter init: %w", err)
				}
			}
			if err := storeCount(deps, init.Count); err != nil {
				return nil, err
			}
			return types.NewResponse().AddAttribute("initial", strconv.FormatUint(init.Count, 10)), nil
		},
		func(deps sandbox.Deps, _ sandbox.Env, msg []byte) ([]byte, error) {
			if string(msg) == "write" {
				if err := deps.Storage.Set(countKey, []byte("0")); err != nil {
					return nil, err
				}
			}
			n, err := loadCount(deps)
			if err != nil {
				return nil, err
			}
			return json.Marshal(CountResponse{Count: n})
		},
	).WithMigrate(func(deps sandbox.Deps, _ sandbox.Env, _ []byte) (*types.Response, error) {
		if err := deps.Storage.Set(migratedKey, []byte("true")); err != nil {
			return nil, err
		}
		return types.NewResponse().AddAttribute("migrated", "true"), nil
	}).WithSudo(func(deps sandbox.Deps, _ sandbox.Env, _ []byte) (*types.Response, error) {
		if err := storeCount(deps, 0); err != nil {
			return nil, err
		}
		return types.NewResponse().AddAttribute("action", "reset"), nil
	})
}

// Step is one scripted sub-message of the relay. Exactly one of Send,
// Execute or Mint is set.
type Step struct {
	ID      uint64      `json:"id"`
	ReplyOn string      `json:"replyOn,omitempty"`
	Payload string      `json:"payload,omitempty"`
	Send    *SendStep   `json:"send,omitempty"`
	Execute *ExecStep   `json:"execute,omitempty"`
	Mint    *types.Coin `json:"mint,omitempty"`
}

type SendStep struct {
	To     crypto.Address `json:"to"`
	Amount string         `json:"amount"`
}

type ExecStep struct {
	Contract crypto.Address  `json:"contract"`
	Msg      json.RawMessage `json:"msg"`
	Funds    string          `json:"funds,omitempty"`
}

// RelayMsg is the execute message of the relay. Recurse re-executes the
// relay with the very same message. Observe names a counter whose value every
// later reply records.
type RelayMsg struct {
	Steps   []Step          `json:"steps,omitempty"`
	Data    string          `json:"data,omitempty"`
	Recurse bool            `json:"recurse,omitempty"`
	Observe *crypto.Address `json:"observe,omitempty"`
}

// Reply payloads understood by the relay.
const (
	// PayloadFailReply makes the reply entry point fail.
	PayloadFailReply = "fail"
	// PayloadReplyData makes the reply return "reply-<id>" as data.
	PayloadReplyData = "data"
)

// ReplyRecord is what the relay logs for every reply it receives. Count is
// the counter value observed from inside the reply when Observe is set.
type ReplyRecord struct {
	ID    uint64  `json:"id"`
	Ok    bool    `json:"ok"`
	Error string  `json:"error,omitempty"`
	Count *uint64 `json:"count,omitempty"`
}

func parseReplyOn(value string) (types.ReplyOn, error) {
	switch strings.ToLower(value) {
	case "", "never":
		return types.ReplyNever, nil
	case "success":
		return types.ReplySuccess, nil
	case "error":
		return types.ReplyError, nil
	case "always":
		return types.ReplyAlways, nil
	default:
		return 0, fmt.Errorf("unknown reply policy %q", value)
	}
}

func (s Step) subMsg() (types.SubMsg, error) {
	replyOn, err := parseReplyOn(s.ReplyOn)
	if err != nil {
		return types.SubMsg{}, err
	}
	var msg types.Msg
	switch {
	case s.Send != nil:
		coins, err := types.ParseCoins(s.Send.Amount)
		if err != nil {
			return types.SubMsg{}, err
		}
		msg = types.BankSend{To: s.Send.To, Amount: coins}
	case s.Execute != nil:
		funds, err := types.ParseCoins(s.Execute.Funds)
		if err != nil {
			return types.SubMsg{}, err
		}
		msg = types.ContractExecute{Contract: s.Execute.Contract, Msg: s.Execute.Msg, Funds: funds}
	case s.Mint != nil:
		// BankMint is a SudoMsg; there is no Msg a contract could emit for it.
		return types.SubMsg{}, fmt.Errorf("%w: step %d mints %s", chainerrors.ErrUnroutableMessage, s.ID, s.Mint)
	default:
		return types.SubMsg{}, fmt.Errorf("step %d has no message", s.ID)
	}
	sub := types.SubMsg{ID: s.ID, Msg: msg, ReplyOn: replyOn}
	if s.Payload != "" {
		sub = sub.WithPayload([]byte(s.Payload))
	}
	return sub, nil
}

func loadReplies(deps sandbox.Deps) ([]ReplyRecord, error) {
	raw, err := deps.Storage.Get(repliesKey)
	if err != nil || raw == nil {
		return nil, err
	}
	var out []ReplyRecord
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Relay emits the sub-messages listed in its execute message in order and
// logs every reply it gets. Its query returns the reply log.
func Relay() *sandbox.ContractWrapper {
	return sandbox.NewContractWrapper(
		func(deps sandbox.Deps, env sandbox.Env, _ sandbox.MessageInfo, msg []byte) (*types.Response, error) {
			var m RelayMsg
			if err := json.Unmarshal(msg, &m); err != nil {
				return nil, fmt.Errorf("parse relay msg: %w", err)
			}
			if m.Observe != nil {
				if err := deps.Storage.Set(observeKey, m.Observe.Bytes()); err != nil {
					return nil, err
				}
			}
			res := types.NewResponse().AddAttribute("action", "relay")
			if m.Data != "" {
				res.SetData([]byte(m.Data))
			}
			if m.Recurse {
				return res.AddMessage(types.ContractExecute{Contract: env.Contract, Msg: msg}), nil
			}
			for _, step := range m.Steps {
				sub, err := step.subMsg()
				if err != nil {
					return nil, err
				}
				res.AddSubMessage(sub)
			}
			return res, nil
		},
		func(sandbox.Deps, sandbox.Env, sandbox.MessageInfo, []byte) (*types.Response, error) {
			return types.NewResponse(), nil
		},
		func(deps sandbox.Deps, _ sandbox.Env, _ []byte) ([]byte, error) {
			replies, err := loadReplies(deps)
			if err != nil {
				return nil, err
			}
			if replies == nil {
				replies = []ReplyRecord{}
			}
			return json.Marshal(replies)
		},
	).WithReply(func(deps sandbox.Deps, _ sandbox.Env, reply types.Reply) (*types.Response, error) {
		if string(reply.Payload) == PayloadFailReply {
			return nil, fmt.Errorf("reply %d refused", reply.ID)
		}
		record := ReplyRecord{ID: reply.ID, Ok: reply.Result.IsOk(), Error: reply.Result.Err}
		observed, err := deps.Storage.Get(observeKey)
		if err != nil {
			return nil, err
		}
		if observed != nil {
			addr, err := crypto.BytesToAddress(observed)
			if err != nil {
				return nil, err
			}
			raw, err := deps.Querier.QuerySmart(addr, []byte("{}"))
			if err != nil {
				return nil, err
			}
			var count CountResponse
			if err := json.Unmarshal(raw, &count); err != nil {
				return nil, err
			}
			record.Count = &count.Count
		}
		replies, err := loadReplies(deps)
		if err != nil {
			return nil, err
		}
		if err := deps.Storage.Set(repliesKey, MustJSON(append(replies, record))); err != nil {
			return nil, err
		}
		res := types.NewResponse().AddAttribute("reply_id", strconv.FormatUint(reply.ID, 10))
		if string(reply.Payload) == PayloadReplyData {
			res.SetData([]byte("reply-" + strconv.FormatUint(reply.ID, 10)))
		}
		return res, nil
	})
}

// Replies decodes the relay query answer.
func Replies(raw []byte) ([]ReplyRecord, error) {
	var out []ReplyRecord
	err := json.Unmarshal(raw, &out)
	return out, err
}

package session

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	controlTypeRegister    = "node.register"
	controlTypeRegisterAck = "node.register.ack"

	AckStatusAccepted = "accepted"
	AckStatusRejected = "rejected"

	maxControlLine = 128 * 1024
)

// Rejection codes carried in RegistrationAck.Code.
const (
	AckCodeOK              uint32 = 0
	AckCodeInvalidPayload  uint32 = 1001
	AckCodeIdentityBinding uint32 = 1002
	AckCodeDuplicateNode   uint32 = 1003
	AckCodeDuplicateKey    uint32 = 1004
)

var (
	ErrInvalidRegistration    = errors.New("session: invalid registration")
	ErrInvalidRegistrationAck = errors.New("session: invalid registration ack")
	ErrControlMessageTooLarge = errors.New("session: control message too large")
)

// ServiceInfo announces one declared service.
type ServiceInfo struct {
	KeyExpr  string `json:"key_expr"`
	TypeName string `json:"type_name"`
}

// Registration is sent by a node dialing a router in client mode.
type Registration struct {
	Node      string        `json:"node"`
	Namespace string        `json:"namespace"`
	DomainID  uint32        `json:"domain_id"`
	GID       string        `json:"gid"`
	Services  []ServiceInfo `json:"services"`
}

// FullyQualifiedName joins namespace and node name.
func (r Registration) FullyQualifiedName() string {
	ns := strings.TrimRight(r.Namespace, "/")
	return ns + "/" + r.Node
}

func (r Registration) Validate() error {
	if strings.TrimSpace(r.Node) == "" {
		return fmt.Errorf("%w: missing node", ErrInvalidRegistration)
	}
	if r.Services == nil {
		return fmt.Errorf("%w: missing services", ErrInvalidRegistration)
	}
	seen := make(map[string]struct{}, len(r.Services))
	for i, svc := range r.Services {
		key := strings.TrimSpace(svc.KeyExpr)
		if key == "" {
			return fmt.Errorf("%w: services[%d] missing key_expr", ErrInvalidRegistration, i)
		}
		if strings.TrimSpace(svc.TypeName) == "" {
			return fmt.Errorf("%w: services[%d] missing type_name", ErrInvalidRegistration, i)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: services[%d] duplicate key_expr %q", ErrInvalidRegistration, i, key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// RegistrationAck is the router's answer.
type RegistrationAck struct {
	Status      string `json:"status"`
	Code        uint32 `json:"code"`
	Message     string `json:"message"`
	Node        string `json:"node"`
	TimestampMS uint64 `json:"timestamp_ms"`
}

func (a RegistrationAck) Validate() error {
	status := strings.TrimSpace(a.Status)
	if status != AckStatusAccepted && status != AckStatusRejected {
		return fmt.Errorf("%w: invalid status", ErrInvalidRegistrationAck)
	}
	if strings.TrimSpace(a.Node) == "" {
		return fmt.Errorf("%w: missing node", ErrInvalidRegistrationAck)
	}
	if a.TimestampMS == 0 {
		return fmt.Errorf("%w: missing timestamp_ms", ErrInvalidRegistrationAck)
	}
	return nil
}

type controlEnvelope struct {
	Type string           `json:"type"`
	Reg  *Registration    `json:"registration,omitempty"`
	Ack  *RegistrationAck `json:"registration_ack,omitempty"`
}

func WriteRegistration(w io.Writer, reg Registration) error {
	if err := reg.Validate(); err != nil {
		return err
	}
	return writeControlEnvelope(w, controlEnvelope{Type: controlTypeRegister, Reg: &reg})
}

func ReadRegistration(r *bufio.Reader) (Registration, error) {
	env, err := readControlEnvelope(r)
	if err != nil {
		return Registration{}, err
	}
	if env.Type != controlTypeRegister || env.Reg == nil {
		return Registration{}, fmt.Errorf("%w: unexpected control type %q", ErrInvalidRegistration, env.Type)
	}
	if err := env.Reg.Validate(); err != nil {
		return Registration{}, err
	}
	return *env.Reg, nil
}

func WriteRegistrationAck(w io.Writer, ack RegistrationAck) error {
	if err := ack.Validate(); err != nil {
		return err
	}
	return writeControlEnvelope(w, controlEnvelope{Type: controlTypeRegisterAck, Ack: &ack})
}

func ReadRegistrationAck(r *bufio.Reader) (RegistrationAck, error) {
	env, err := readControlEnvelope(r)
	if err != nil {
		return RegistrationAck{}, err
	}
	if env.Type != controlTypeRegisterAck || env.Ack == nil {
		return RegistrationAck{}, fmt.Errorf("%w: unexpected control type %q", ErrInvalidRegistrationAck, env.Type)
	}
	if err := env.Ack.Validate(); err != nil {
		return RegistrationAck{}, err
	}
	return *env.Ack, nil
}

func writeControlEnvelope(w io.Writer, env controlEnvelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_, err = w.Write(append(payload, '\n'))
	return err
}

// readControlEnvelope reads one newline-terminated JSON line, refusing
// lines longer than maxControlLine before buffering them whole.
func readControlEnvelope(r *bufio.Reader) (controlEnvelope, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > maxControlLine {
			return controlEnvelope{}, ErrControlMessageTooLarge
		}
		if err == nil {
			break
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return controlEnvelope{}, err
		}
	}
	var env controlEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		return controlEnvelope{}, fmt.Errorf("session: decode control envelope: %w", err)
	}
	return env, nil
}

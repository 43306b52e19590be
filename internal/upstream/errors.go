// errors.go - Normalization of upstream HTTP failures into user-facing errors
package upstream

import (
	"encoding/json"
	"fmt"
)

// User-facing messages. The upstream product ships in pt-BR; the strings are
// kept verbatim from the shipped frontend.
const (
	MsgBadCredentials  = "Usuário ou senha incorretos. Verifique suas credenciais."
	MsgNoConnection    = "Não foi possível conectar ao servidor."
	MsgNoConnectionDev = "Não foi possível conectar ao servidor. Verifique se o backend está rodando."
	MsgUnauthorized    = "Não autorizado. Verifique suas credenciais."
	MsgRegisterFailed  = "Dados inválidos. Verifique os campos preenchidos."
)

// Error is the single error type resource consumers ever see. Status 0 means
// the server was unreachable.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// connectError wraps a transport-level failure (status 0).
func connectError() *Error {
	return &Error{Status: 0, Message: MsgNoConnection}
}

// errorBody is the subset of the upstream error payload the dashboard reads.
type errorBody struct {
	Detail         string          `json:"detail"`
	NonFieldErrors []string        `json:"non_field_errors"`
	Username       json.RawMessage `json:"username"`
	Email          json.RawMessage `json:"email"`
	Password       json.RawMessage `json:"password"`
	FirstName      json.RawMessage `json:"first_name"`
	LastName       json.RawMessage `json:"last_name"`
}

// detailOf extracts the preferred backend message: detail first, then the
// first non-field error.
func detailOf(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}
	if eb.Detail != "" {
		return eb.Detail
	}
	if len(eb.NonFieldErrors) > 0 {
		return eb.NonFieldErrors[0]
	}
	return ""
}

// normalizeAuthError maps a failed auth call (login/verify/refresh) to the
// credential-centric message set.
func normalizeAuthError(status int, body []byte) *Error {
	if status == 401 {
		if msg := detailOf(body); msg != "" {
			return &Error{Status: status, Message: msg}
		}
		return &Error{Status: status, Message: MsgBadCredentials}
	}
	if status == 0 {
		return &Error{Status: 0, Message: MsgNoConnectionDev}
	}
	if msg := detailOf(body); msg != "" {
		return &Error{Status: status, Message: msg}
	}
	return &Error{Status: status, Message: fmt.Sprintf("Erro %d: %s", status, statusText(status))}
}

// normalizeResourceError maps a failed resource call (devices, categories,
// alerts, thresholds) per the shared convention.
func normalizeResourceError(status int, body []byte) *Error {
	switch {
	case status == 401:
		return &Error{Status: status, Message: MsgUnauthorized}
	case status == 0:
		return connectError()
	}
	if msg := detailOf(body); msg != "" {
		return &Error{Status: status, Message: msg}
	}
	return &Error{Status: status, Message: fmt.Sprintf("Erro %d: %s", status, statusText(status))}
}

// normalizeRegisterError concatenates field-level validation messages in a
// fixed order into one joined message.
func normalizeRegisterError(status int, body []byte) *Error {
	if status == 400 {
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(body, &raw); err == nil {
			var messages []string
			for _, field := range []string{"username", "email", "password", "first_name", "last_name", "non_field_errors"} {
				if msg := firstMessage(raw[field]); msg != "" {
					messages = append(messages, msg)
				}
			}
			if len(messages) > 0 {
				return &Error{Status: status, Message: joinMessages(messages)}
			}
		}
		return &Error{Status: status, Message: MsgRegisterFailed}
	}
	if status == 0 {
		return &Error{Status: 0, Message: MsgNoConnectionDev}
	}
	if msg := detailOf(body); msg != "" {
		return &Error{Status: status, Message: msg}
	}
	return &Error{Status: status, Message: fmt.Sprintf("Erro %d: Erro ao criar conta", status)}
}

// firstMessage reads a field error that may be a string or an array of strings.
func firstMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) > 0 {
			return list[0]
		}
		return ""
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single
	}
	return ""
}

func joinMessages(messages []string) string {
	joined := ""
	for i, m := range messages {
		if i > 0 {
			joined += ". "
		}
		joined += m
	}
	return joined
}

func statusText(status int) string {
	switch status {
	case 400:
		return "requisição inválida"
	case 403:
		return "acesso negado"
	case 404:
		return "recurso não encontrado"
	case 500:
		return "erro interno do servidor"
	}
	return "falha na requisição"
}

package upstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAuthError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"401 with detail", 401, `{"detail":"No active account found"}`, "No active account found"},
		{"401 with non_field_errors", 401, `{"non_field_errors":["Conta bloqueada"]}`, "Conta bloqueada"},
		{"401 empty body", 401, ``, MsgBadCredentials},
		{"connectivity", 0, ``, MsgNoConnectionDev},
		{"500 generic", 500, `{}`, "Erro 500: erro interno do servidor"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := normalizeAuthError(tt.status, []byte(tt.body))
			assert.Equal(t, tt.status, err.Status)
			assert.Equal(t, tt.want, err.Message)
		})
	}
}

func TestNormalizeResourceError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"401 always unauthorized", 401, `{"detail":"ignored"}`, MsgUnauthorized},
		{"connectivity", 0, ``, MsgNoConnection},
		{"404 with detail", 404, `{"detail":"Não encontrado."}`, "Não encontrado."},
		{"404 generic", 404, `{}`, "Erro 404: recurso não encontrado"},
		{"403 generic", 403, ``, "Erro 403: acesso negado"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := normalizeResourceError(tt.status, []byte(tt.body))
			assert.Equal(t, tt.status, err.Status)
			assert.Equal(t, tt.want, err.Message)
		})
	}
}

func TestNormalizeRegisterError(t *testing.T) {
	// Field messages concatenate in fixed order regardless of body order.
	body := `{"password":["Senha muito curta."],"username":["Nome já em uso."],"email":["Email inválido."]}`
	err := normalizeRegisterError(400, []byte(body))
	assert.Equal(t, "Nome já em uso.. Email inválido.. Senha muito curta.", err.Message)

	err = normalizeRegisterError(400, []byte(`{}`))
	assert.Equal(t, MsgRegisterFailed, err.Message)

	err = normalizeRegisterError(400, []byte(`{"non_field_errors":["As senhas não conferem."]}`))
	assert.Equal(t, "As senhas não conferem.", err.Message)

	err = normalizeRegisterError(0, nil)
	assert.Equal(t, MsgNoConnectionDev, err.Message)
}

func TestNormalizeRegisterErrorStringField(t *testing.T) {
	// Some backends send a plain string instead of an array.
	err := normalizeRegisterError(400, []byte(`{"email":"Email inválido."}`))
	assert.Equal(t, "Email inválido.", err.Message)
}

package domain

import "context"

// Payload é o corpo encaminhado ao provider. Prompt é o texto extraído da
// request (e a chave exata de cache); Meta carrega metadados opcionais.
type Payload struct {
	Prompt string
	Meta   map[string]string
}

// Response é a resposta opaca do provider. O significado do conteúdo é
// responsabilidade do provider, não deste core.
type Response struct {
	Content string
	Meta    map[string]string
}

// ProviderClient é o colaborador de computação lenta e cara.
//
// Batch deve devolver as respostas na MESMA ordem e quantidade dos payloads
// de entrada; a distribuição para os chamadores é posicional.
type ProviderClient interface {
	Call(ctx context.Context, p Payload) (Response, error)
	Batch(ctx context.Context, ps []Payload) ([]Response, error)
}

// IdleState é o sinal externo de carga que escala o limite efetivo.
type IdleState string

const (
	IdleActive   IdleState = "active"
	IdleIdle     IdleState = "idle"
	IdleCritical IdleState = "critical"
)

// IdleStateProvider é lido (não possuído) pelo governor.
type IdleStateProvider interface {
	State() IdleState
	// NoteTraffic registra tráfego recente; best-effort, pode ser no-op.
	NoteTraffic(meta map[string]string)
}

package domain

import "fmt"

// Action é o resultado do dispatch.
type Action string

const (
	ActionAllow   Action = "allow"
	ActionBlock   Action = "block"
	ActionReroute Action = "reroute"
)

// Decision é efêmera: uma por request, nunca persistida.
//
// MatchedBindingID fica vazio quando a request é isenta (ExemptRoute).
// CandidateIDs lista todos os bindings considerados, para auditoria.
// ExpectedRoute só é preenchido em block, para diagnóstico.
type Decision struct {
	Action           Action
	MatchedBindingID string
	Conflicted       bool
	RerouteTarget    string
	ExpectedRoute    string
	CandidateIDs     []string
}

// BlockError materializa uma decisão de block como erro para o chamador.
func (d Decision) BlockError() *ConflictBlockedError {
	return &ConflictBlockedError{BindingID: d.MatchedBindingID, ExpectedRoute: d.ExpectedRoute}
}

// ConflictBlockedError sinaliza um conflito resolvido como block, carregando
// o binding governante e a rota esperada para diagnóstico.
type ConflictBlockedError struct {
	BindingID     string
	ExpectedRoute string
}

func (e *ConflictBlockedError) Error() string {
	return fmt.Sprintf("dispatch: conflito bloqueado pelo binding %q (rota esperada %q)", e.BindingID, e.ExpectedRoute)
}

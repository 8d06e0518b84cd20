// Package admission fornece o adapter HTTP (net/http) para o governor de
// admissão.
//
// Visão geral (camadas):
//
//   - domain: ProviderClient, IdleStateProvider e a taxonomia de erros
//   - application: Governor (cache, janela deslizante, batching, timeout)
//     e Breaker
//   - infra: provider HTTP/JSON com Bearer token, idle provider em memória
//   - admission (este pacote): extração do payload da request + tradução dos
//     erros do governor para status HTTP (429/504/502)
//
// Fluxo no gateway:
//
//  1. Extrai o prompt do corpo JSON (campo "prompt") ou do header
//  2. Sem payload → segue para o próximo handler (pass-through)
//  3. Com payload → Admit decide: cache, rejeição, lote, direto ou timeout
//  4. A resposta do provider é devolvida ao cliente como JSON
package admission

// Package ratelimit fornece os adapters HTTP (net/http) de borda: rate limit
// por cliente (token bucket) e limite de concorrência, aplicados ANTES do
// dispatch de bindings e da admissão ao provider.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (decisão allow/deny, acquire/timeout) sem net/http
//   - infra: implementações concretas (token bucket via x/time/rate, semáforo)
//   - ratelimit (este pacote): middlewares HTTP + extração de chave +
//     tradução para status/headers
//
// Este limite é por CLIENTE na borda; não confundir com a janela deslizante
// do governor de admissão, que protege o provider como um todo.
//
// Fluxo no gateway:
//
//  1. Extrai a chave do cliente (IP/header/XFF)
//  2. Chama a camada application para obter a decisão
//  3. Se bloqueado, responde 429 (rate limit) ou 503 (concorrência)
//  4. Se permitido, chama o próximo handler (dispatch → admissão → proxy)
package ratelimit

// Package dispatch fornece o adapter HTTP (net/http) para o dispatch de
// bindings de rota.
//
// Visão geral (camadas):
//
//   - domain: Binding, matchers, política de conflito, Decision (sem net/http)
//   - application: Registry (conjunto imutável + hash de versão) e Dispatcher
//     (classificação isenta/única/conflito)
//   - infra: loader YAML e watcher fsnotify para reload atômico
//   - dispatch (este pacote): middleware HTTP + tradução da Decision para
//     status/headers (403 em block, 307 em reroute)
//
// Fluxo no gateway:
//
//  1. O middleware pede uma Decision ao Dispatcher
//  2. block → responde 403 com o binding governante nos headers
//  3. reroute → responde 307 com Location (o reroute é consultivo: quem
//     re-despacha é o cliente, não este core)
//  4. allow → chama o próximo handler
package dispatch

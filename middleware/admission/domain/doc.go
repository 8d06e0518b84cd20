// Package domain define contratos e tipos de domínio para a admissão de
// requests ao provider: ProviderClient, IdleStateProvider e a taxonomia de
// erros (rate limit, timeout, falha de provider).
//
// Este pacote não depende de net/http nem de implementações concretas.
package domain

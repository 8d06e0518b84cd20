// Package infra contém implementações concretas do contrato audit.Sink.
//
// Exemplos:
//   - MemorySink: trilha em memória com hash-chain (evidência de adulteração)
//   - RedisSink: contadores best-effort em Redis (pipeline, TTL, bucket por minuto)
//   - PromSink: contadores Prometheus por evento/ação
package infra

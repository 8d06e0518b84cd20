// Package infra contém implementações concretas para a admissão:
//
//   - HTTPProvider: ProviderClient sobre HTTP/JSON com Bearer token
//   - MemoryIdleProvider: IdleStateProvider derivado da recência de tráfego
package infra

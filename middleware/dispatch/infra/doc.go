// Package infra contém implementações concretas para o dispatch:
//
//   - Loader: carrega bindings e rotas isentas de um arquivo YAML
//   - Watcher: observa o arquivo via fsnotify e recarrega o registry
//     atomicamente quando ele muda
package infra

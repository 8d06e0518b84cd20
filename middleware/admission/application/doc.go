// Package application contém o caso de uso central da admissão: o Governor,
// que aplica cache, rate limit deslizante, batching e timeout antes de cada
// chamada ao provider, e o Breaker que corta chamadas em cascata de falhas.
//
// Ele depende apenas dos pacotes domain e audit e não conhece net/http.
package application

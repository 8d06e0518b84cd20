// Package application contém os casos de uso do dispatch: o Registry
// (conjunto imutável de bindings + hash de versão) e o Dispatcher
// (classificação de request em isenta / única / conflito).
//
// Ele depende apenas dos pacotes domain e audit e não conhece net/http.
package application

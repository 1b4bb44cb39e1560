// Package session provides the in-memory implementation of
// core.SessionStore. The store exclusively owns session lifetime: creation,
// the NEW→ACTIVE→{CLOSED,EXPIRED} status machine, sequence numbering and
// turn accounting all live here.
package session

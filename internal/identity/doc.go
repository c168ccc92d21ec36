// Package identity implementa un proveedor de identidad local que cumple
// repository.IdentityProvider.
//
// Las credenciales se guardan hasheadas con bcrypt en el cache client y la
// sesión vigente es un JWT HS256 persistido en el mismo cliente (memory o
// redis). Con redis un cliente reiniciado conserva la sesión hasta su
// expiración. Un token expirado o inválido se lee como "sin sesión".
package identity

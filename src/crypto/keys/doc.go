// Package keys implements the public key cryptography used by the ClearNode
// client.
//
// Two kinds of keys are handled here. The wallet key identifies the user and
// answers authentication challenges. The session key is an ephemeral keypair
// generated by the client and registered with the broker during
// authentication; every subsequent RPC request is signed with it.
//
// Both are secp256k1 keys, so Ethereum accounts can be used as wallets.
// Signatures are in the 65 byte recoverable [R || S || V] form with V in
// {27, 28}, and identities are Ethereum addresses in EIP-55 checksum form.
package keys

// keygen generates an RSA keypair for JWT_PRIVATE_KEY / JWT_PUBLIC_KEY,
// the asymmetric scheme the Token Service (C3) uses for access, refresh,
// and pre-auth tokens.
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

func main() {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		fmt.Printf("failed to generate key: %v\n", err)
		os.Exit(1)
	}

	privBytes := x509.MarshalPKCS1PrivateKey(privateKey)
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: privBytes})

	pubBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		fmt.Printf("failed to marshal public key: %v\n", err)
		os.Exit(1)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})

	fmt.Println("--- copy below into your environment ---")
	fmt.Printf("JWT_PRIVATE_KEY=\"%s\"\n", string(privPEM))
	fmt.Printf("JWT_PUBLIC_KEY=\"%s\"\n", string(pubPEM))
	fmt.Println("-----------------------------------------")
}

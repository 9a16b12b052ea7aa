// Command licensedll builds the verification boundary as a C shared library:
//
//	go build -buildmode=c-shared -o license.so ./cmd/licensedll
//
// Every char* returned here is allocated with C.CString and belongs to the
// caller until it is passed back to FreeString.
package main

/*
#include <stdlib.h>
*/
import "C"

import (
	"unsafe"

	"license-verifier/internal/boundary"
)

// 返回本机激活码，失败时返回 NULL
//
//export GenerateFingerprint
func GenerateFingerprint() *C.char {
	code := boundary.GenerateFingerprint()
	if code == "" {
		return nil
	}
	return C.CString(code)
}

//export VerifyLicense
func VerifyLicense(publicKeyPath, licenseContent *C.char) C.int {
	if publicKeyPath == nil || licenseContent == nil {
		return C.int(boundary.VerifyLicense("", ""))
	}
	return C.int(boundary.VerifyLicense(C.GoString(publicKeyPath), C.GoString(licenseContent)))
}

// 校验通过返回扁平 JSON，否则返回 NULL
//
//export GetLicenseData
func GetLicenseData(publicKeyPath, licenseContent *C.char) *C.char {
	if publicKeyPath == nil || licenseContent == nil {
		return nil
	}
	data, ok := boundary.GetLicenseData(C.GoString(publicKeyPath), C.GoString(licenseContent))
	if !ok {
		return nil
	}
	return C.CString(data)
}

//export FreeString
func FreeString(str *C.char) {
	if str != nil {
		C.free(unsafe.Pointer(str))
	}
}

func main() {}

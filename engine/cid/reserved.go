package cid

// Reserved admin CIDs name each admin command kind so the admin
// completion dispatcher can switch on CID alone, per spec.md
// section 3 "Reserved CIDs".
const (
	AdminIdentifyController uint16 = 1
	AdminIdentifyNamespace  uint16 = 2
	AdminCreateCQ           uint16 = 3
	AdminCreateSQ           uint16 = 4
	AdminDeleteSQ           uint16 = 5
	AdminDeleteCQ           uint16 = 6
)

package authstate

// Category is a signal key category as named by the protocol client.
type Category string

const (
	CategoryPreKey              Category = "pre-key"
	CategorySession             Category = "session"
	CategorySenderKey           Category = "sender-key"
	CategoryAppStateSyncKey     Category = "app-state-sync-key"
	CategoryAppStateSyncVersion Category = "app-state-sync-version"
	CategorySenderKeyMemory     Category = "sender-key-memory"
)

// bagNames maps categories to the property names used inside the persisted "keys" object.
var bagNames = map[Category]string{
	CategoryPreKey:              "preKeys",
	CategorySession:             "sessions",
	CategorySenderKey:           "senderKeys",
	CategoryAppStateSyncKey:     "appStateSyncKeys",
	CategoryAppStateSyncVersion: "appStateVersions",
	CategorySenderKeyMemory:     "senderKeyMemory",
}

// Bag returns the persisted bag name for c. Unknown categories use their own name.
func (c Category) Bag() string {
	if b, ok := bagNames[c]; ok {
		return b
	}
	return string(c)
}

// Binary reports whether values of c are binary-normalized.
func (c Category) Binary() bool {
	return c != CategoryAppStateSyncKey && c != CategoryAppStateSyncVersion
}

func categoryForBag(bag string) Category {
	for c, b := range bagNames {
		if b == bag {
			return c
		}
	}
	return Category(bag)
}

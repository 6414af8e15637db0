package sandbox

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"lukechampine.com/blake3"

	chainerrors "chainsim/core/errors"
	"chainsim/core/state"
	"chainsim/core/types"
	"chainsim/crypto"
	"chainsim/storage"
)

const (
	// ContractAttribute is prepended to every event a contract call
	// produces.
	ContractAttribute = "_contract_address"

	// MaxSaltLength bounds the salt of predictable addresses.
	MaxSaltLength = 64
)

var (
	contractRoot = []byte("sandbox/contract")
	instanceSeq  = []byte("sandbox/seq")
	dataRoot     = []byte("sandbox/data")
)

func contractKey(addr crypto.Address) []byte {
	return state.Key(contractRoot, addr.Bytes())
}

func dataPrefix(addr crypto.Address) []byte {
	return append(state.Key(dataRoot, addr.Bytes()), '/')
}

// contractRecord is the stored form of an instance. The admin is kept as
// a value plus presence flag since RLP has no optional fields.
type contractRecord struct {
	CodeID        uint64
	Creator       crypto.Address
	Admin         crypto.Address
	HasAdmin      bool
	Label         string
	CreatedHeight uint64
	Active        bool
}

func (r *contractRecord) info(addr crypto.Address) types.ContractInfo {
	info := types.ContractInfo{
		Address:       addr,
		CodeID:        r.CodeID,
		Creator:       r.Creator,
		Label:         r.Label,
		CreatedHeight: r.CreatedHeight,
		Active:        r.Active,
	}
	if r.HasAdmin {
		admin := r.Admin
		info.Admin = &admin
	}
	return info
}

type codeEntry struct {
	info     types.CodeInfo
	contract Contract
}

// Keeper owns the code registry and the instance records. The registry is
// process memory, like compiled code on a real chain; instance records and
// contract storage live in the transactional store.
type Keeper struct {
	mu     sync.RWMutex
	codes  []codeEntry
	logger *slog.Logger
}

func NewKeeper(logger *slog.Logger) *Keeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Keeper{logger: logger.With("module", "sandbox")}
}

// StoreCode registers a behavior unit and returns its code id. Ids are
// sequential starting at 1.
func (k *Keeper) StoreCode(creator crypto.Address, contract Contract) uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	id := uint64(len(k.codes) + 1)
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], id)
	h := blake3.New(32, nil)
	h.Write([]byte("chainsim/code"))
	h.Write(creator.Bytes())
	h.Write(seq[:])
	k.codes = append(k.codes, codeEntry{
		info:     types.CodeInfo{ID: id, Creator: creator, Checksum: h.Sum(nil)},
		contract: contract,
	})
	return id
}

func (k *Keeper) code(id uint64) (codeEntry, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if id == 0 || id > uint64(len(k.codes)) {
		return codeEntry{}, fmt.Errorf("%w: %d", chainerrors.ErrUnknownCode, id)
	}
	return k.codes[id-1], nil
}

// CodeInfo describes a registered code id.
func (k *Keeper) CodeInfo(id uint64) (types.CodeInfo, error) {
	entry, err := k.code(id)
	if err != nil {
		return types.CodeInfo{}, err
	}
	info := entry.info
	info.Checksum = append([]byte(nil), info.Checksum...)
	return info, nil
}

// Register creates the instance record for a new contract and returns its
// address. The instance counter lives in state so a rolled back
// instantiation does not consume an address.
func (k *Keeper) Register(kv storage.KVStore, codeID uint64, creator crypto.Address, admin *crypto.Address,
	label string, height uint64, salt []byte) (crypto.Address, error) {
	if strings.TrimSpace(label) == "" {
		return crypto.Address{}, chainerrors.ErrEmptyLabel
	}
	entry, err := k.code(codeID)
	if err != nil {
		return crypto.Address{}, err
	}
	if len(salt) > MaxSaltLength {
		return crypto.Address{}, fmt.Errorf("sandbox: salt longer than %d bytes", MaxSaltLength)
	}
	mgr := state.NewManager(kv)
	seq, err := mgr.NextSequence(instanceSeq)
	if err != nil {
		return crypto.Address{}, err
	}
	addr := crypto.Derive(creator, seq)
	if len(salt) > 0 {
		addr = crypto.DeriveSalted(creator, entry.info.Checksum, salt)
	}
	if ok, err := mgr.KVGet(contractKey(addr), nil); err != nil {
		return crypto.Address{}, err
	} else if ok {
		k.logger.Error("contract address collision", "address", addr.String(), "code_id", codeID)
		return crypto.Address{}, fmt.Errorf("%w: %s", chainerrors.ErrAddressCollision, addr)
	}
	rec := &contractRecord{
		CodeID:        codeID,
		Creator:       creator,
		Label:         label,
		CreatedHeight: height,
		Active:        true,
	}
	if admin != nil {
		rec.Admin, rec.HasAdmin = *admin, true
	}
	if err := mgr.KVPut(contractKey(addr), rec); err != nil {
		return crypto.Address{}, err
	}
	return addr, nil
}

func (k *Keeper) load(kv storage.KVStore, addr crypto.Address) (*contractRecord, error) {
	rec := new(contractRecord)
	ok, err := state.NewManager(kv).KVGet(contractKey(addr), rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", chainerrors.ErrContractNotFound, addr)
	}
	return rec, nil
}

// ContractInfo returns the metadata of an instance.
func (k *Keeper) ContractInfo(kv storage.KVStore, addr crypto.Address) (types.ContractInfo, error) {
	rec, err := k.load(kv, addr)
	if err != nil {
		return types.ContractInfo{}, err
	}
	return rec.info(addr), nil
}

// Contracts lists every instance in address order.
func (k *Keeper) Contracts(kv storage.KVStore) ([]types.ContractInfo, error) {
	prefix := append(append([]byte(nil), contractRoot...), '/')
	var out []types.ContractInfo
	err := state.NewManager(kv).KVIterate(prefix, func(key, raw []byte) (bool, error) {
		rec := new(contractRecord)
		if err := state.Decode(raw, rec); err != nil {
			return true, err
		}
		addr, err := crypto.BytesToAddress(key[len(prefix):])
		if err != nil {
			return true, err
		}
		out = append(out, rec.info(addr))
		return false, nil
	})
	return out, err
}

// UpdateAdmin replaces the admin of addr, or clears it when admin is nil.
// Only the current admin may do either.
func (k *Keeper) UpdateAdmin(kv storage.KVStore, sender, addr crypto.Address, admin *crypto.Address) ([]types.Event, error) {
	rec, err := k.load(kv, addr)
	if err != nil {
		return nil, err
	}
	if !rec.HasAdmin || rec.Admin != sender {
		return nil, fmt.Errorf("%w: only admin can update %s", chainerrors.ErrUnauthorized, addr)
	}
	if admin == nil {
		rec.Admin, rec.HasAdmin = crypto.Address{}, false
	} else {
		rec.Admin, rec.HasAdmin = *admin, true
	}
	return nil, state.NewManager(kv).KVPut(contractKey(addr), rec)
}

// Deactivate marks addr inactive. Its storage stays readable.
func (k *Keeper) Deactivate(kv storage.KVStore, addr crypto.Address) ([]types.Event, error) {
	rec, err := k.load(kv, addr)
	if err != nil {
		return nil, err
	}
	rec.Active = false
	if err := state.NewManager(kv).KVPut(contractKey(addr), rec); err != nil {
		return nil, err
	}
	return []types.Event{types.NewEvent("deactivate").Add(ContractAttribute, addr.String())}, nil
}

// Sudo handles privileged contract messages that do not run contract code.
func (k *Keeper) Sudo(kv storage.KVStore, msg types.SudoMsg) ([]types.Event, error) {
	switch m := msg.(type) {
	case types.ContractDeactivate:
		return k.Deactivate(kv, m.Contract)
	default:
		return nil, fmt.Errorf("%w: sandbox cannot handle sudo %T", chainerrors.ErrUnroutableMessage, msg)
	}
}

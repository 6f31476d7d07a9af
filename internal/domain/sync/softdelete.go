package sync

// SoftDelete переводит пометку удаления между серверной схемой таблицы
// и локальным представлением. Локально всегда хранится nullable deleted_at
// в миллисекундах.
type SoftDelete interface {
	Name() string
	// FromRemote приводит серверную запись к локальному deleted_at
	FromRemote(r Record) Record
	// ToRemote поля, которые нужно отправить на сервер при мягком удалении
	// (deletedAt == nil означает восстановление)
	ToRemote(deletedAt *int64) Record
}

// NullableDeletedAt сервер хранит только deleted_at
type NullableDeletedAt struct{}

func (NullableDeletedAt) Name() string { return "deleted_at" }

func (NullableDeletedAt) FromRemote(r Record) Record {
	return r.Clone()
}

func (NullableDeletedAt) ToRemote(deletedAt *int64) Record {
	if deletedAt == nil {
		return Record{ColDeletedAt: nil}
	}
	return Record{ColDeletedAt: *deletedAt}
}

// FlagAndTimestamp сервер хранит is_deleted и deleted_at
type FlagAndTimestamp struct{}

func (FlagAndTimestamp) Name() string { return "is_deleted+deleted_at" }

func (FlagAndTimestamp) FromRemote(r Record) Record {
	out := r.Clone()
	deleted, _ := out[ColIsDeleted].(bool)
	delete(out, ColIsDeleted)

	if !deleted {
		out[ColDeletedAt] = nil
		return out
	}
	if out[ColDeletedAt] != nil {
		return out
	}
	// Флаг без времени: берем последнее известное время изменения
	switch {
	case out[ColUpdatedAt] != nil:
		out[ColDeletedAt] = out[ColUpdatedAt]
	case out[ColCreatedAt] != nil:
		out[ColDeletedAt] = out[ColCreatedAt]
	default:
		out[ColDeletedAt] = int64(0)
	}
	return out
}

func (FlagAndTimestamp) ToRemote(deletedAt *int64) Record {
	if deletedAt == nil {
		return Record{ColIsDeleted: false, ColDeletedAt: nil}
	}
	return Record{ColIsDeleted: true, ColDeletedAt: *deletedAt}
}

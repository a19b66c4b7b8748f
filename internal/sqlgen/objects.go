package sqlgen

import (
	"fmt"

	"tiksql/internal/catalog"
)

type dateIndex struct {
	table, column string
}

// Tables queried by time get a (user_id, date) composite index.
var userDateIndexes = []dateIndex{
	{"comments", "comment_date"},
	{"posts", "post_date"},
	{"direct_messages", "message_date"},
	{"group_chats", "message_date"},
	{"liked_videos", "like_date"},
	{"followers", "follow_date"},
	{"following", "follow_date"},
	{"login_history", "login_date"},
	{"searches", "search_date"},
	{"coin_purchases", "purchase_date"},
}

var dateIndexes = []dateIndex{
	{"comments", "comment_date"},
	{"posts", "post_date"},
	{"liked_videos", "like_date"},
	{"login_history", "login_date"},
	{"searches", "search_date"},
}

// Indexes returns the secondary index statements for tables present in cat.
func Indexes(cat *catalog.Catalog) []string {
	out := []string{
		"CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);",
		"CREATE INDEX IF NOT EXISTS idx_users_created_at ON users(created_at);",
	}
	has := func(t string) bool { _, ok := cat.ForTable(t); return ok }
	for _, ix := range userDateIndexes {
		if has(ix.table) {
			out = append(out, fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_user_date ON %s(user_id, %s);", ix.table, ix.table, ix.column))
		}
	}
	for _, ix := range dateIndexes {
		if has(ix.table) {
			out = append(out, fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_date ON %s(%s);", ix.table, ix.table, ix.column))
		}
	}
	return out
}

const createDateValidationLog = `CREATE TABLE IF NOT EXISTS date_validation_log (
    log_id INTEGER PRIMARY KEY AUTOINCREMENT,
    table_name TEXT NOT NULL,
    user_id INTEGER NOT NULL,
    column_name TEXT NOT NULL,
    invalid_value TEXT,
    row_id INTEGER,
    validation_type TEXT DEFAULT 'format_validation',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (user_id) REFERENCES users(user_id) ON DELETE CASCADE
);`

const createDataValidationLog = `CREATE TABLE IF NOT EXISTS data_validation_log (
    log_id INTEGER PRIMARY KEY AUTOINCREMENT,
    table_name TEXT NOT NULL,
    user_id INTEGER NOT NULL,
    column_name TEXT NOT NULL,
    issue_type TEXT,
    invalid_value TEXT,
    validation_type TEXT DEFAULT 'data_validation',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (user_id) REFERENCES users(user_id) ON DELETE CASCADE
);`

const dateTriggerTmpl = `CREATE TRIGGER IF NOT EXISTS validate_%[1]s_%[2]s
BEFORE INSERT ON %[1]s
FOR EACH ROW
WHEN (
    NEW.%[2]s IS NOT NULL AND
    NEW.%[2]s != '' AND
    NEW.%[2]s NOT GLOB '????-??-?? ??:??:??' AND
    NEW.%[2]s NOT GLOB '????-??-??T??:??:??*' AND
    NEW.%[2]s NOT GLOB '????-??-??'
)
BEGIN
    INSERT INTO date_validation_log (table_name, user_id, column_name, invalid_value, row_id, validation_type)
    VALUES ('%[1]s', NEW.user_id, '%[2]s', NEW.%[2]s, NEW.%[3]s, 'format_validation');
END;`

const validateUserDataTrigger = `CREATE TRIGGER IF NOT EXISTS validate_user_data
BEFORE INSERT ON users
FOR EACH ROW
BEGIN
    INSERT INTO data_validation_log (table_name, user_id, column_name, issue_type, invalid_value, validation_type)
    SELECT 'users', NEW.user_id, 'username', 'length_validation', NEW.username, 'data_validation'
    WHERE LENGTH(NEW.username) < 3 OR LENGTH(NEW.username) > 50;

    INSERT INTO data_validation_log (table_name, user_id, column_name, issue_type, invalid_value, validation_type)
    SELECT 'users', NEW.user_id, 'email', 'format_validation', NEW.email, 'data_validation'
    WHERE NEW.email IS NOT NULL AND NEW.email != '' AND NEW.email NOT LIKE '%_@_%._%';

    INSERT INTO date_validation_log (table_name, user_id, column_name, invalid_value, row_id, validation_type)
    SELECT 'users', NEW.user_id, 'birth_date', NEW.birth_date, NEW.user_id, 'format_validation'
    WHERE NEW.birth_date IS NOT NULL
      AND NEW.birth_date != ''
      AND NEW.birth_date NOT GLOB '????-??-??';
END;`

// Duplicates are logged, not rejected.
const preventDuplicateUsernameTrigger = `CREATE TRIGGER IF NOT EXISTS prevent_duplicate_username
BEFORE INSERT ON users
FOR EACH ROW
WHEN EXISTS (SELECT 1 FROM users WHERE username = NEW.username)
BEGIN
    INSERT INTO data_validation_log (table_name, user_id, column_name, issue_type, invalid_value, validation_type)
    VALUES ('users', NEW.user_id, 'username', 'duplicate_username', NEW.username, 'data_validation');
END;`

// userDateColumns are validated on users in addition to the catalog's date fields.
var userDateColumns = []string{"birth_date", "created_at", "updated_at"}

// Triggers returns the validation log tables and every validation trigger.
//
// Date triggers cover users' fixed date columns and, for every other table in
// catalog order, the date fields of its first entry.
func Triggers(cat *catalog.Catalog) []string {
	out := []string{createDateValidationLog, createDataValidationLog}
	for _, col := range userDateColumns {
		out = append(out, dateTrigger(catalog.UsersTable, col))
	}
	for _, table := range cat.TablesInOrder() {
		if table == catalog.UsersTable {
			continue
		}
		for _, col := range cat.DateFields(table) {
			out = append(out, dateTrigger(table, col))
		}
	}
	return append(out, validateUserDataTrigger, preventDuplicateUsernameTrigger)
}

func dateTrigger(table, column string) string {
	return fmt.Sprintf(dateTriggerTmpl, table, column, catalog.PrimaryKey(table))
}

const userActivityView = `-- User activity summary
CREATE VIEW IF NOT EXISTS vw_user_activity_summary AS
SELECT
    u.user_id,
    u.username,
    u.display_name,
    u.follower_count,
    u.following_count,
    (SELECT COUNT(*) FROM posts p WHERE p.user_id = u.user_id) as total_posts,
    (SELECT COUNT(*) FROM comments c WHERE c.user_id = u.user_id) as total_comments,
    (SELECT COUNT(*) FROM liked_videos l WHERE l.user_id = u.user_id) as total_likes,
    (SELECT COUNT(*) FROM followers f WHERE f.user_id = u.user_id) as total_followers,
    (SELECT COUNT(*) FROM following f WHERE f.user_id = u.user_id) as total_following,
    (SELECT MAX(login_date) FROM login_history l WHERE l.user_id = u.user_id) as last_login,
    (SELECT COUNT(*) FROM searches s WHERE s.user_id = u.user_id) as total_searches
FROM users u;`

const dateValidationReportView = `-- Date validation report
CREATE VIEW IF NOT EXISTS vw_date_validation_report AS
SELECT
    dvl.table_name,
    dvl.user_id,
    u.username,
    dvl.column_name,
    COUNT(*) as invalid_count,
    GROUP_CONCAT(DISTINCT SUBSTR(dvl.invalid_value, 1, 50)) as sample_values,
    MIN(dvl.created_at) as first_detected,
    MAX(dvl.created_at) as last_detected
FROM date_validation_log dvl
JOIN users u ON dvl.user_id = u.user_id
GROUP BY dvl.table_name, dvl.user_id, dvl.column_name
ORDER BY invalid_count DESC, dvl.user_id;`

const userDataQualityView = `-- User data quality summary
CREATE VIEW IF NOT EXISTS vw_user_data_quality AS
SELECT
    u.user_id,
    u.username,
    COALESCE(d.date_issues, 0) as date_validation_issues,
    COALESCE(v.data_issues, 0) as data_validation_issues,
    COALESCE(d.date_issues, 0) + COALESCE(v.data_issues, 0) as total_issues
FROM users u
LEFT JOIN (
    SELECT user_id, COUNT(*) as date_issues
    FROM date_validation_log
    GROUP BY user_id
) d ON u.user_id = d.user_id
LEFT JOIN (
    SELECT user_id, COUNT(*) as data_issues
    FROM data_validation_log
    GROUP BY user_id
) v ON u.user_id = v.user_id
ORDER BY total_issues DESC;`

// Views returns the report views. They are generated whether or not triggers are.
func Views() []string {
	return []string{userActivityView, dateValidationReportView, userDataQualityView}
}

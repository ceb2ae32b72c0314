package store

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		description TEXT,
		price REAL NOT NULL CHECK (price >= 0),
		sale_price REAL CHECK (sale_price IS NULL OR sale_price < price),
		sku TEXT UNIQUE NOT NULL,
		stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
		category TEXT,
		tags TEXT NOT NULL DEFAULT '[]',
		rating REAL NOT NULL DEFAULT 0 CHECK (rating >= 0 AND rating <= 5),
		images TEXT NOT NULL DEFAULT '[]',
		attributes TEXT NOT NULL DEFAULT '{}',
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		first_name TEXT,
		last_name TEXT,
		role TEXT NOT NULL DEFAULT 'customer' CHECK (role IN ('customer', 'admin')),
		phone TEXT,
		address TEXT,
		city TEXT,
		state TEXT,
		postal_code TEXT,
		country TEXT,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id),
		order_number TEXT UNIQUE NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		total_amount REAL NOT NULL CHECK (total_amount >= 0),
		shipping_address TEXT NOT NULL DEFAULT '{}',
		billing_address TEXT NOT NULL DEFAULT '{}',
		payment_status TEXT NOT NULL DEFAULT 'pending',
		payment_method TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id INTEGER NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id INTEGER,
		product_title TEXT NOT NULL,
		sku TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price REAL NOT NULL,
		total_price REAL NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS analytics_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL CHECK (event_type IN ('product_view', 'cart_add', 'search', 'filter_use', 'page_view')),
		product_id INTEGER,
		category TEXT,
		search_query TEXT,
		filter_data TEXT NOT NULL DEFAULT '{}',
		session_id TEXT,
		user_agent TEXT,
		ip_address TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_category ON products(category)`,
	`CREATE INDEX IF NOT EXISTS idx_products_active ON products(is_active)`,
	`CREATE INDEX IF NOT EXISTS idx_products_sku ON products(sku)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id)`,
	`CREATE INDEX IF NOT EXISTS idx_analytics_type_created ON analytics_events(event_type, created_at)`,
	`CREATE TRIGGER IF NOT EXISTS update_products_updated_at AFTER UPDATE ON products
	FOR EACH ROW WHEN NEW.updated_at = OLD.updated_at
	BEGIN
		UPDATE products SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
	END`,
	`CREATE TRIGGER IF NOT EXISTS update_users_updated_at AFTER UPDATE ON users
	FOR EACH ROW WHEN NEW.updated_at = OLD.updated_at
	BEGIN
		UPDATE users SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
	END`,
	`CREATE TRIGGER IF NOT EXISTS update_orders_updated_at AFTER UPDATE ON orders
	FOR EACH ROW WHEN NEW.updated_at = OLD.updated_at
	BEGIN
		UPDATE orders SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
	END`,
}
